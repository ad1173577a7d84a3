package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brianjohn-park/livetranslate/stt"
	"github.com/brianjohn-park/livetranslate/translate"
)

const translateTimeout = 15 * time.Second

// TokenVerifier checks the bearer token presented in the auth message.
type TokenVerifier interface {
	VerifyToken(token string) (uuid.UUID, error)
}

// Relay bridges one client WebSocket to one upstream transcription session
// per connection. There is no shared state between connections.
type Relay struct {
	recognizer stt.Recognizer
	translator translate.Translator
	verifier   TokenVerifier
	logger     *log.Logger
	upgrader   websocket.Upgrader
}

func New(
	recognizer stt.Recognizer,
	translator translate.Translator,
	verifier TokenVerifier,
	logger *log.Logger,
) *Relay {
	return &Relay{
		recognizer: recognizer,
		translator: translator,
		verifier:   verifier,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("upgrade", "error", err)
		return
	}
	r.handle(req.Context(), ws)
}

type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateStreaming
	stateStopped
)

// safeConn serializes writes; the read loop and the result pump both write.
type safeConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *safeConn) writeError(message string) {
	_ = c.writeJSON(statusMessage{Type: msgError, Message: message})
}

func (r *Relay) handle(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn := &safeConn{ws: ws}
	state := stateUnauthenticated

	var session stt.LiveSession
	defer func() {
		if session != nil {
			if err := session.Stop(); err != nil {
				r.logger.Debug("stop upstream", "error", err)
			}
		}
	}()

	var sourceLang, targetLang string

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			r.logger.Debug("client read", "error", err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if state != stateStreaming {
				conn.writeError("audio received before start")
				return
			}
			if err := session.SendAudio(data); err != nil {
				conn.writeError(fmt.Sprintf("forward audio: %s", err))
				return
			}

		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				conn.writeError("malformed control message")
				return
			}

			switch msg.Type {
			case msgAuth:
				if state != stateUnauthenticated {
					conn.writeError("already authenticated")
					return
				}
				userID, err := r.verifier.VerifyToken(msg.Token)
				if err != nil {
					conn.writeError("authentication failed")
					return
				}
				state = stateAuthenticated
				r.logger.Info("relay authenticated", "user", userID)
				if err := conn.writeJSON(statusMessage{Type: msgAuthSuccess}); err != nil {
					return
				}

			case msgStart:
				if state != stateAuthenticated {
					conn.writeError("start requires authentication")
					return
				}
				if msg.SourceLang == "" || msg.TargetLang == "" {
					conn.writeError("start requires source_lang and target_lang")
					return
				}
				sourceLang = msg.SourceLang
				targetLang = msg.TargetLang

				session, err = r.recognizer.Start(ctx, sourceLang)
				if err != nil {
					conn.writeError(fmt.Sprintf("open transcription: %s", err))
					return
				}
				state = stateStreaming
				r.logger.Info(
					"relay streaming",
					"source", sourceLang,
					"target", targetLang,
				)

				go r.pump(ctx, conn, session, sourceLang, targetLang)

				if err := conn.writeJSON(statusMessage{Type: msgReady}); err != nil {
					return
				}

			case msgStop:
				if state != stateStreaming {
					conn.writeError("not streaming")
					return
				}
				cancel()
				if err := session.Stop(); err != nil {
					r.logger.Debug("stop upstream", "error", err)
				}
				session = nil
				state = stateStopped
				conn.writeJSON(statusMessage{Type: msgStopped})
				return

			default:
				conn.writeError(fmt.Sprintf("unknown message type %q", msg.Type))
				return
			}
		}
	}
}

// pump forwards finalized upstream results to the client, translating each
// one on the way through. Interim results never reach the client.
func (r *Relay) pump(
	ctx context.Context,
	conn *safeConn,
	session stt.LiveSession,
	sourceLang, targetLang string,
) {
	colors := newSpeakerPalette()

	for result := range session.Results() {
		if !result.Final {
			continue
		}

		translated, err := r.translateOne(ctx, result.Text, sourceLang, targetLang)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("translate", "error", err)
			translated = ""
		}

		msg := TranslationMessage{
			Type:            msgTranslation,
			Speaker:         result.Speaker,
			SpeakerColor:    colors.Color(result.Speaker),
			Original:        result.Text,
			Translated:      translated,
			Start:           result.Start,
			End:             result.End,
			Confidence:      result.Confidence,
			ConfidenceLevel: ConfidenceLevel(result.Confidence),
		}
		if err := conn.writeJSON(msg); err != nil {
			r.logger.Debug("client write", "error", err)
			return
		}
	}

	// Upstream went away on its own; unblock the read loop so the client
	// connection tears down too.
	if ctx.Err() == nil {
		conn.writeError("transcription stream ended")
		conn.ws.Close()
	}
}

func (r *Relay) translateOne(
	ctx context.Context,
	text, sourceLang, targetLang string,
) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, translateTimeout)
	defer cancel()
	return r.translator.Translate(callCtx, text, sourceLang, targetLang)
}
