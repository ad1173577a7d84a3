package relay

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brianjohn-park/livetranslate/auth"
	"github.com/brianjohn-park/livetranslate/stt"
)

var testUserID = uuid.New()

type fakeSession struct {
	mu      sync.Mutex
	audio   [][]byte
	stopped bool
	results chan stt.Result
}

func newFakeSession() *fakeSession {
	return &fakeSession{results: make(chan stt.Result, 16)}
}

func (s *fakeSession) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, data)
	return nil
}

func (s *fakeSession) Results() <-chan stt.Result {
	return s.results
}

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.results)
	}
	return nil
}

func (s *fakeSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *fakeSession) AudioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

type fakeRecognizer struct {
	mu      sync.Mutex
	started bool
	session *fakeSession
}

func (r *fakeRecognizer) Start(_ context.Context, _ string) (stt.LiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return r.session, nil
}

func (r *fakeRecognizer) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

type fakeTranslator struct {
	fail bool
}

func (t fakeTranslator) Translate(_ context.Context, text, _, targetLang string) (string, error) {
	if t.fail {
		return "", errors.New("translator down")
	}
	return "[" + targetLang + "] " + text, nil
}

func dialTestRelay(
	t *testing.T,
	recognizer stt.Recognizer,
	translator fakeTranslator,
) (*websocket.Conn, *auth.Service, func()) {
	t.Helper()

	service := auth.NewService("test-secret", time.Hour)
	r := New(recognizer, translator, service, log.New(io.Discard))
	server := httptest.NewServer(r)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		server.Close()
		t.Fatalf("dial relay: %v", err)
	}

	cleanup := func() {
		conn.Close()
		server.Close()
	}
	return conn, service, cleanup
}

func issueToken(t *testing.T, service *auth.Service) string {
	t.Helper()
	token, err := service.IssueToken(testUserID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func readStatus(t *testing.T, conn *websocket.Conn) statusMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg statusMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read status message: %v", err)
	}
	return msg
}

func readTranslation(t *testing.T, conn *websocket.Conn) TranslationMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg TranslationMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read translation message: %v", err)
	}
	return msg
}

func startStreaming(t *testing.T, conn *websocket.Conn, service *auth.Service) {
	t.Helper()
	conn.WriteJSON(clientMessage{Type: "auth", Token: issueToken(t, service)})
	if msg := readStatus(t, conn); msg.Type != "auth_success" {
		t.Fatalf("auth reply = %+v, want auth_success", msg)
	}
	conn.WriteJSON(clientMessage{Type: "start", SourceLang: "es", TargetLang: "en"})
	if msg := readStatus(t, conn); msg.Type != "ready" {
		t.Fatalf("start reply = %+v, want ready", msg)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartRequiresAuth(t *testing.T) {
	recognizer := &fakeRecognizer{session: newFakeSession()}
	conn, _, cleanup := dialTestRelay(t, recognizer, fakeTranslator{})
	defer cleanup()

	conn.WriteJSON(clientMessage{Type: "start", SourceLang: "es", TargetLang: "en"})

	msg := readStatus(t, conn)
	if msg.Type != "error" {
		t.Fatalf("reply = %+v, want error", msg)
	}
	if recognizer.Started() {
		t.Error("unauthenticated start must not open an upstream session")
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	recognizer := &fakeRecognizer{session: newFakeSession()}
	conn, _, cleanup := dialTestRelay(t, recognizer, fakeTranslator{})
	defer cleanup()

	conn.WriteJSON(clientMessage{Type: "auth", Token: "bogus"})

	if msg := readStatus(t, conn); msg.Type != "error" {
		t.Fatalf("reply = %+v, want error", msg)
	}
}

func TestBinaryBeforeStartRejected(t *testing.T) {
	recognizer := &fakeRecognizer{session: newFakeSession()}
	conn, service, cleanup := dialTestRelay(t, recognizer, fakeTranslator{})
	defer cleanup()

	conn.WriteJSON(clientMessage{Type: "auth", Token: issueToken(t, service)})
	readStatus(t, conn)

	conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})

	if msg := readStatus(t, conn); msg.Type != "error" {
		t.Fatalf("reply = %+v, want error", msg)
	}
}

func TestAudioForwardedWhileStreaming(t *testing.T) {
	session := newFakeSession()
	recognizer := &fakeRecognizer{session: session}
	conn, service, cleanup := dialTestRelay(t, recognizer, fakeTranslator{})
	defer cleanup()

	startStreaming(t, conn, service)

	conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
	conn.WriteMessage(websocket.BinaryMessage, []byte{4, 5, 6})

	waitFor(t, "forwarded audio", func() bool { return session.AudioCount() == 2 })
}

func TestOneTranslationPerFinalResult(t *testing.T) {
	session := newFakeSession()
	recognizer := &fakeRecognizer{session: session}
	conn, service, cleanup := dialTestRelay(t, recognizer, fakeTranslator{})
	defer cleanup()

	startStreaming(t, conn, service)

	// Interim results must produce nothing downstream.
	session.results <- stt.Result{Speaker: "S1", Text: "hola", Final: false}
	session.results <- stt.Result{
		Speaker:    "S1",
		Text:       "hola mundo",
		Start:      0.5,
		End:        1.8,
		Confidence: 0.92,
		Final:      true,
	}

	msg := readTranslation(t, conn)
	if msg.Type != "translation" {
		t.Fatalf("message type = %q, want translation", msg.Type)
	}
	if msg.Original != "hola mundo" {
		t.Errorf("original = %q, want %q", msg.Original, "hola mundo")
	}
	if msg.Translated != "[en] hola mundo" {
		t.Errorf("translated = %q, want %q", msg.Translated, "[en] hola mundo")
	}
	if msg.Start != 0.5 || msg.End != 1.8 {
		t.Errorf("timing = %v..%v, want 0.5..1.8", msg.Start, msg.End)
	}
	if msg.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", msg.Confidence)
	}
	if msg.ConfidenceLevel != "high" {
		t.Errorf("confidence level = %q, want high", msg.ConfidenceLevel)
	}
	if msg.SpeakerColor == "" {
		t.Error("expected a speaker color")
	}

	// The next message must correspond to the next final result, proving
	// the interim one produced nothing.
	session.results <- stt.Result{Speaker: "S2", Text: "adios", Confidence: 0.6, Final: true}
	msg = readTranslation(t, conn)
	if msg.Original != "adios" {
		t.Errorf("second original = %q, want %q", msg.Original, "adios")
	}
	if msg.ConfidenceLevel != "low" {
		t.Errorf("second confidence level = %q, want low", msg.ConfidenceLevel)
	}
}

func TestTranslationFailureKeepsOriginal(t *testing.T) {
	session := newFakeSession()
	recognizer := &fakeRecognizer{session: session}
	conn, service, cleanup := dialTestRelay(t, recognizer, fakeTranslator{fail: true})
	defer cleanup()

	startStreaming(t, conn, service)

	session.results <- stt.Result{Speaker: "S1", Text: "hola", Confidence: 0.8, Final: true}

	msg := readTranslation(t, conn)
	if msg.Original != "hola" {
		t.Errorf("original = %q, want hola", msg.Original)
	}
	if msg.Translated != "" {
		t.Errorf("translated = %q, want empty on translator failure", msg.Translated)
	}
}

func TestStopTearsDownUpstream(t *testing.T) {
	session := newFakeSession()
	recognizer := &fakeRecognizer{session: session}
	conn, service, cleanup := dialTestRelay(t, recognizer, fakeTranslator{})
	defer cleanup()

	startStreaming(t, conn, service)

	conn.WriteJSON(clientMessage{Type: "stop"})

	if msg := readStatus(t, conn); msg.Type != "stopped" {
		t.Fatalf("reply = %+v, want stopped", msg)
	}
	waitFor(t, "upstream stop", session.Stopped)
}

func TestClientCloseClosesUpstream(t *testing.T) {
	session := newFakeSession()
	recognizer := &fakeRecognizer{session: session}
	conn, service, cleanup := dialTestRelay(t, recognizer, fakeTranslator{})
	defer cleanup()

	startStreaming(t, conn, service)

	conn.Close()

	waitFor(t, "upstream stop after client close", session.Stopped)
}
