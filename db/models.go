package db

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Session struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Title           string
	SourceLang      string
	TargetLang      string
	StartedAt       time.Time
	DurationSeconds float64
	SpeakerCount    int32
	AvgConfidence   float64
	CreatedAt       time.Time
}

type Utterance struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Position       int32
	Speaker        string
	OriginalText   string
	TranslatedText string
	StartTime      float64
	EndTime        float64
	Confidence     float64
}
