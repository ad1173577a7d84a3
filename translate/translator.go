package translate

import "context"

// Translator converts text between languages. The relay treats the call as
// synchronous: one segment in, one translated segment out.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
