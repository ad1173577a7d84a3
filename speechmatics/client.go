package speechmatics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	WebSocketBaseURL = "wss://eu2.rt.speechmatics.com/v2"
	PingInterval     = 30 * time.Second
	PongTimeout      = 60 * time.Second
)

// Client speaks the Speechmatics realtime transcription protocol over a
// single WebSocket connection.
type Client struct {
	APIKey string
	WSConn *websocket.Conn

	seqNo atomic.Int64

	closeMu sync.Mutex
	closed  bool
}

func NewClient(apiKey string) *Client {
	return &Client{APIKey: apiKey}
}

type TranscriptionConfig struct {
	Language                 string  `json:"language"`
	OperatingPoint           string  `json:"operating_point,omitempty"`
	Diarization              string  `json:"diarization,omitempty"`
	SpeakerChangeSensitivity float64 `json:"speaker_change_sensitivity,omitempty"`
	EnablePartials           bool    `json:"enable_partials,omitempty"`
	MaxDelay                 float64 `json:"max_delay,omitempty"`
	PunctuationEnabled       bool    `json:"punctuation_enabled,omitempty"`
}

type AudioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type StartRecognitionMessage struct {
	Message             string              `json:"message"`
	AudioFormat         AudioFormat         `json:"audio_format"`
	TranscriptionConfig TranscriptionConfig `json:"transcription_config"`
}

type EndOfStreamMessage struct {
	Message   string `json:"message"`
	LastSeqNo int64  `json:"last_seq_no"`
}

type Alternative struct {
	Confidence float64 `json:"confidence"`
	Content    string  `json:"content"`
	Speaker    string  `json:"speaker,omitempty"`
}

type TranscriptResult struct {
	Alternatives []Alternative `json:"alternatives"`
	StartTime    float64       `json:"start_time"`
	EndTime      float64       `json:"end_time"`
	Type         string        `json:"type"`
	IsEOS        bool          `json:"is_eos,omitempty"`
}

type RTTranscriptResponse struct {
	Message string             `json:"message"`
	Reason  string             `json:"reason,omitempty"`
	Results []TranscriptResult `json:"results,omitempty"`
}

func (c *Client) ConnectWebSocket(ctx context.Context, config TranscriptionConfig, audioFormat AudioFormat) error {
	dialer := websocket.DefaultDialer
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	url := fmt.Sprintf("%s/%s", WebSocketBaseURL, config.Language)
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	c.WSConn = conn

	go c.keepAlive(ctx)

	startMsg := StartRecognitionMessage{
		Message:             "StartRecognition",
		AudioFormat:         audioFormat,
		TranscriptionConfig: config,
	}

	err = c.WSConn.WriteJSON(startMsg)
	if err != nil {
		return fmt.Errorf("failed to send StartRecognition message: %w", err)
	}

	return nil
}

func (c *Client) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.WSConn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(PongTimeout)); err != nil {
				log.Error("Failed to send ping", "error", err)
				return
			}
		}
	}
}

func (c *Client) SendAudio(data []byte) error {
	if c.WSConn == nil {
		return fmt.Errorf("WebSocket connection not established")
	}

	err := c.WSConn.WriteMessage(websocket.BinaryMessage, data)
	if err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}

	c.seqNo.Add(1)
	return nil
}

func (c *Client) EndStream() error {
	if c.WSConn == nil {
		return fmt.Errorf("WebSocket connection not established")
	}

	endMsg := EndOfStreamMessage{
		Message:   "EndOfStream",
		LastSeqNo: c.seqNo.Load(),
	}

	err := c.WSConn.WriteJSON(endMsg)
	if err != nil {
		return fmt.Errorf("failed to send EndOfStream message: %w", err)
	}

	return nil
}

func (c *Client) ReceiveTranscript(ctx context.Context) (chan RTTranscriptResponse, chan error) {
	transcriptChan := make(chan RTTranscriptResponse)
	errChan := make(chan error)

	go func() {
		defer close(transcriptChan)
		defer close(errChan)

		for {
			select {
			case <-ctx.Done():
				return
			default:
				var response RTTranscriptResponse
				err := c.WSConn.ReadJSON(&response)
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						errChan <- fmt.Errorf("WebSocket closed unexpectedly: %w", err)
					}
					return
				}

				transcriptChan <- response
			}
		}
	}()

	return transcriptChan, errChan
}

// CloseWebSocket is idempotent and leaves WSConn set; the receive and
// keepalive goroutines may still be dereferencing it, and they exit on the
// read or write error the closed connection hands them.
func (c *Client) CloseWebSocket() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.WSConn == nil || c.closed {
		return nil
	}
	c.closed = true

	writeErr := c.WSConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	if err := c.WSConn.Close(); err != nil {
		return fmt.Errorf("failed to close WebSocket connection: %w", err)
	}
	if writeErr != nil {
		return fmt.Errorf("failed to send close message: %w", writeErr)
	}
	return nil
}
