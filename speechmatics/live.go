package speechmatics

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/brianjohn-park/livetranslate/stt"
)

// LiveTranscriber starts realtime Speechmatics sessions with speaker
// diarization enabled. It implements stt.Recognizer.
type LiveTranscriber struct {
	apiKey string
	logger *log.Logger
}

func NewLiveTranscriber(apiKey string, logger *log.Logger) *LiveTranscriber {
	return &LiveTranscriber{
		apiKey: apiKey,
		logger: logger,
	}
}

func (t *LiveTranscriber) Start(
	ctx context.Context,
	sourceLang string,
) (stt.LiveSession, error) {
	client := NewClient(t.apiKey)

	config := TranscriptionConfig{
		Language:       sourceLang,
		Diarization:    "speaker",
		EnablePartials: true,
		MaxDelay:       2,
	}
	format := AudioFormat{
		Type:       "raw",
		Encoding:   "pcm_s16le",
		SampleRate: 16000,
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	if err := client.ConnectWebSocket(sessionCtx, config, format); err != nil {
		cancel()
		return nil, fmt.Errorf("start recognition: %w", err)
	}

	session := &liveSession{
		client:  client,
		results: make(chan stt.Result),
		cancel:  cancel,
		logger:  t.logger,
	}

	go session.receive(sessionCtx)

	return session, nil
}

type liveSession struct {
	client  *Client
	results chan stt.Result
	cancel  context.CancelFunc
	logger  *log.Logger
}

func (s *liveSession) SendAudio(data []byte) error {
	return s.client.SendAudio(data)
}

func (s *liveSession) Results() <-chan stt.Result {
	return s.results
}

func (s *liveSession) Stop() error {
	defer s.cancel()
	if err := s.client.EndStream(); err != nil {
		s.logger.Debug("end stream", "error", err)
	}
	return s.client.CloseWebSocket()
}

func (s *liveSession) receive(ctx context.Context) {
	defer close(s.results)

	transcripts, errs := s.client.ReceiveTranscript(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				s.logger.Error("transcript stream", "error", err)
			}
			return
		case response, ok := <-transcripts:
			if !ok {
				return
			}
			result, ok := MapResponse(response)
			if !ok {
				continue
			}
			s.logger.Info(
				"hear",
				"txt", result.Text,
				"who", result.Speaker,
				"final", result.Final,
			)
			select {
			case s.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// MapResponse flattens one AddTranscript or AddPartialTranscript message
// into a single Result. Word results are joined with spaces; punctuation
// attaches to the preceding word. Confidence is the mean over word results,
// and the speaker label comes from the first diarized word.
func MapResponse(response RTTranscriptResponse) (stt.Result, bool) {
	var final bool
	switch response.Message {
	case "AddTranscript":
		final = true
	case "AddPartialTranscript":
		final = false
	default:
		return stt.Result{}, false
	}

	var sb strings.Builder
	var speaker string
	var confidenceSum float64
	var wordCount int
	start := -1.0
	end := 0.0

	for _, result := range response.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]

		if result.Type == "punctuation" {
			sb.WriteString(alt.Content)
		} else {
			if sb.Len() > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(alt.Content)
			confidenceSum += alt.Confidence
			wordCount++
		}

		if speaker == "" && alt.Speaker != "" {
			speaker = alt.Speaker
		}
		if start < 0 || result.StartTime < start {
			start = result.StartTime
		}
		if result.EndTime > end {
			end = result.EndTime
		}
	}

	text := strings.TrimSpace(sb.String())
	if len(text) == 0 {
		return stt.Result{}, false
	}

	confidence := 0.0
	if wordCount > 0 {
		confidence = confidenceSum / float64(wordCount)
	}
	if start < 0 {
		start = 0
	}

	return stt.Result{
		Speaker:    speaker,
		Text:       text,
		Start:      start,
		End:        end,
		Confidence: confidence,
		Final:      final,
	}, true
}
