package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahtavarasmus/TextAndDrive/internal/agent"
	"github.com/ahtavarasmus/TextAndDrive/internal/history"
	"github.com/ahtavarasmus/TextAndDrive/internal/httperr"
	"github.com/ahtavarasmus/TextAndDrive/internal/metrics"
	"github.com/ahtavarasmus/TextAndDrive/internal/model"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
	"github.com/ahtavarasmus/TextAndDrive/internal/voice"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAgent struct {
	result *agent.TurnResult
	err    error
	got    []agent.TurnRequest
}

func (f *fakeAgent) ProcessTurn(ctx context.Context, sess *history.Session, req agent.TurnRequest) (*agent.TurnResult, error) {
	f.got = append(f.got, req)
	if f.result != nil && f.result.Decision != nil {
		sess.AddExchange(req.Transcript, f.result.Decision.Raw())
	}
	return f.result, f.err
}

func (f *fakeAgent) Tools() []tools.Definition {
	return []tools.Definition{{Name: tools.SendMessage, Description: "Send a message",
		Params: []tools.Parameter{{Name: "room_id", Type: tools.TypeString, Required: true}}}}
}

type fakeRecordings struct {
	outcome  *voice.Outcome
	err      error
	gotPath  string
	gotAudio []byte
}

func (f *fakeRecordings) HandleRecording(ctx context.Context, sess *history.Session, audioPath string) (*voice.Outcome, error) {
	f.gotPath = audioPath
	f.gotAudio, _ = os.ReadFile(audioPath)
	return f.outcome, f.err
}

type fixture struct {
	agent      *fakeAgent
	recordings *fakeRecordings
	sessions   *history.Manager
	router     *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveConfirmation("confirm")

	f := &fixture{
		agent:      &fakeAgent{},
		recordings: &fakeRecordings{},
		sessions:   history.NewManager(history.NewMemoryStore(), 2),
	}
	f.router = New(Deps{
		Agent:      f.agent,
		Sessions:   f.sessions,
		Recordings: f.recordings,
		Gatherer:   reg,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		UploadDir:  t.TempDir(),
	}).Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/sessions", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		SessionID   string `json:"session_id"`
		MaxMessages int    `json:"max_messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.SessionID)
	assert.Equal(t, 4, body.MaxMessages)
	return body.SessionID
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = f.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `textanddrive_confirmations_total{source="confirm"} 1`)
}

func TestListTools(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/v1/tools", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tools []tools.Definition `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tools, 1)
	assert.Equal(t, tools.SendMessage, body.Tools[0].Name)
	assert.Equal(t, "room_id", body.Tools[0].Params[0].Name)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)

	w := f.do(t, http.MethodGet, "/v1/sessions/"+id+"/history", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["messages"])

	w = f.do(t, http.MethodDelete, "/v1/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/v1/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodGet, "/v1/sessions/"+id+"/history", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTurn(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)
	f.agent.result = &agent.TurnResult{
		Transcript:   "tell Rasmus I'm late",
		Decision:     model.FunctionCall{Name: tools.SendMessage, Arguments: map[string]any{"room_id": "!room:x", "text": "late"}},
		ToolName:     tools.SendMessage,
		SendResult:   "Message sent successfully to room: !room:x",
		Confirmation: "Told Rasmus you're running late.",
		Source:       agent.SourceConfirm,
	}

	w := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/turns",
		bytes.NewBufferString(`{"transcript":"tell Rasmus I'm late","chat_context":"Chat #1: Rasmus"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var body turnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, id, body.SessionID)
	assert.Equal(t, tools.SendMessage, body.ToolName)
	assert.Equal(t, "Told Rasmus you're running late.", body.Confirmation)
	assert.Equal(t, "confirm", body.Source)
	assert.Contains(t, body.Decision, `"function_call"`)

	require.Len(t, f.agent.got, 1)
	assert.Equal(t, "Chat #1: Rasmus", f.agent.got[0].ChatContext)

	w = f.do(t, http.MethodGet, "/v1/sessions/"+id+"/history", nil, "")
	msgs := decode(t, w)["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestCreateTurn_BadRequests(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)

	w := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/turns", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/v1/sessions/missing/turns", bytes.NewBufferString(`{"transcript":"hi"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, f.agent.got)
}

func TestCreateTurn_LLMFailure(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)
	f.agent.err = fmt.Errorf("decide call: %w", &httperr.Error{Service: "LLM API", StatusCode: 503, Detail: "overloaded"})

	w := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/turns", bytes.NewBufferString(`{"transcript":"hi"}`), "application/json")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Contains(t, body["error"], "overloaded")
	assert.EqualValues(t, 503, body["upstream_status"])
}

func TestCreateTurn_Timeout(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)
	f.agent.err = fmt.Errorf("decide call: %w", context.DeadlineExceeded)

	w := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/turns", bytes.NewBufferString(`{"transcript":"hi"}`), "application/json")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func multipartAudio(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "clip.wav")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCreateRecording(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)

	reply := filepath.Join(t.TempDir(), "reply.mp3")
	require.NoError(t, os.WriteFile(reply, []byte("mp3-bytes"), 0o600))
	f.recordings.outcome = &voice.Outcome{
		Transcript: "what did Anna say",
		Turn:       &agent.TurnResult{Transcript: "what did Anna say", Confirmation: "Anna said hi.", Source: agent.SourceConfirm},
		AudioPath:  reply,
	}

	body, ct := multipartAudio(t, "audio", []byte("RIFF-data"))
	w := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/recordings", body, ct)
	require.Equal(t, http.StatusOK, w.Code)

	var resp recordingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "what did Anna say", resp.Transcript)
	assert.Equal(t, "Anna said hi.", resp.Confirmation)
	assert.Equal(t, "mp3", resp.AudioFormat)
	audio, err := base64.StdEncoding.DecodeString(resp.Audio)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)

	assert.Equal(t, []byte("RIFF-data"), f.recordings.gotAudio)
	assert.Equal(t, ".wav", filepath.Ext(f.recordings.gotPath))
	assert.NoFileExists(t, f.recordings.gotPath, "uploaded recording is removed")
	assert.NoFileExists(t, reply, "synthesized audio is removed once sent")
}

func TestCreateRecording_Errors(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)

	body, ct := multipartAudio(t, "file", []byte("x"))
	w := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/recordings", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.recordings.err = errors.New("transcribe: STT down")
	body, ct = multipartAudio(t, "audio", []byte("x"))
	w = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/recordings", body, ct)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode(t, w)["error"], "STT down")
}

func TestCreateRecording_NotConfigured(t *testing.T) {
	sessions := history.NewManager(history.NewMemoryStore(), 2)
	sess, err := sessions.NewSession()
	require.NoError(t, err)
	router := New(Deps{Agent: &fakeAgent{}, Sessions: sessions,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).Router()

	body, ct := multipartAudio(t, "audio", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sess.ID+"/recordings", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRun(t *testing.T) {
	srv := New(Deps{Agent: &fakeAgent{}, Sessions: history.NewManager(history.NewMemoryStore(), 2),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, srv.Run(ctx, "127.0.0.1:0"), "shutdown on context end is not an error")

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	assert.Error(t, srv.Run(context.Background(), busy.Addr().String()))
}
