package relay

// clientMessage is any control message sent by the client. The type tag
// decides which fields matter.
type clientMessage struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang,omitempty"`
}

type statusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// TranslationMessage carries one finalized, translated utterance downstream.
type TranslationMessage struct {
	Type            string  `json:"type"`
	Speaker         string  `json:"speaker"`
	SpeakerColor    string  `json:"speaker_color"`
	Original        string  `json:"original"`
	Translated      string  `json:"translated"`
	Start           float64 `json:"start"`
	End             float64 `json:"end"`
	Confidence      float64 `json:"confidence"`
	ConfidenceLevel string  `json:"confidence_level"`
}

const (
	msgAuth        = "auth"
	msgStart       = "start"
	msgStop        = "stop"
	msgAuthSuccess = "auth_success"
	msgReady       = "ready"
	msgTranslation = "translation"
	msgStopped     = "stopped"
	msgError       = "error"
)
