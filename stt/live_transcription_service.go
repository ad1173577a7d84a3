package stt

import (
	"context"
)

// Result is one recognized segment from the provider. Final results carry
// the text that gets translated and persisted; non-final results are
// interim hypotheses that may still change.
type Result struct {
	Speaker    string
	Text       string
	Start      float64
	End        float64
	Confidence float64
	Final      bool
}

type LiveSession interface {
	Stop() error
	SendAudio(data []byte) error
	Results() <-chan Result
}

type Recognizer interface {
	Start(ctx context.Context, sourceLang string) (LiveSession, error)
}
