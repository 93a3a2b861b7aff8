package speech

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahtavarasmus/TextAndDrive/internal/httperr"
)

var fakeMP3 = []byte("ID3\x03\x00fake-mp3-frames")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o600))
	return path
}

func TestWhisperTranscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer stt-key", r.Header.Get("Authorization"))
		if assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			assert.Equal(t, DefaultWhisperModel, r.FormValue("model"))
			_, _, err := r.FormFile("file")
			assert.NoError(t, err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"  send a message to Rasmus  "}`)
	}))
	defer srv.Close()

	tr, err := NewWhisperTranscriber(WhisperConfig{BaseURL: srv.URL + "/v1", APIKey: "stt-key"}, quietLogger())
	require.NoError(t, err)

	text, err := tr.Transcribe(context.Background(), writeRecording(t))
	require.NoError(t, err)
	assert.Equal(t, "send a message to Rasmus", text)
}

func TestWhisperTranscriber_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"auth"}}`)
	}))
	defer srv.Close()

	tr, err := NewWhisperTranscriber(WhisperConfig{BaseURL: srv.URL, APIKey: "k"}, quietLogger())
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), writeRecording(t))
	var apiErr *httperr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "bad key", apiErr.Detail)
}

func TestWhisperTranscriber_MissingFile(t *testing.T) {
	tr, err := NewWhisperTranscriber(WhisperConfig{APIKey: "k"}, quietLogger())
	require.NoError(t, err)
	_, err = tr.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestElevenLabsSynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/"+DefaultElevenLabsVoice, r.URL.Path)
		assert.Equal(t, "tts-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"text":          "Message sent.",
			"model_id":      DefaultElevenLabsModel,
			"output_format": DefaultElevenLabsFormat,
		}, body)

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(fakeMP3)
	}))
	defer srv.Close()

	cache := t.TempDir()
	s, err := NewElevenLabsSynthesizer(ElevenLabsConfig{BaseURL: srv.URL + "/", APIKey: "tts-key", CacheDir: cache}, quietLogger())
	require.NoError(t, err)

	path, err := s.Synthesize(context.Background(), "Message sent.")
	require.NoError(t, err)
	assert.Equal(t, cache, filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fakeMP3, data)
}

func TestElevenLabsSynthesizer_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		io.WriteString(w, `{"detail":{"status":"quota_exceeded","message":"Quota exceeded"}}`)
	}))
	defer srv.Close()

	cache := t.TempDir()
	s, err := NewElevenLabsSynthesizer(ElevenLabsConfig{BaseURL: srv.URL, APIKey: "k", CacheDir: cache}, quietLogger())
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "hi")
	var apiErr *httperr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Equal(t, "Quota exceeded", apiErr.Detail)

	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Empty(t, entries, "no audio file is left behind")
}

func TestElevenLabsTranscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech-to-text", r.URL.Path)
		assert.Equal(t, "stt-key", r.Header.Get("xi-api-key"))
		if assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			assert.Equal(t, DefaultScribeModel, r.FormValue("model_id"))
			_, _, err := r.FormFile("file")
			assert.NoError(t, err)
		}
		io.WriteString(w, `{"language_code":"en","text":"what did anna say"}`)
	}))
	defer srv.Close()

	tr, err := NewElevenLabsTranscriber(ElevenLabsConfig{BaseURL: srv.URL, APIKey: "stt-key"}, quietLogger())
	require.NoError(t, err)

	text, err := tr.Transcribe(context.Background(), writeRecording(t))
	require.NoError(t, err)
	assert.Equal(t, "what did anna say", text)
}

func TestElevenLabs_RequiresKey(t *testing.T) {
	_, err := NewElevenLabsSynthesizer(ElevenLabsConfig{}, nil)
	assert.Error(t, err)
	_, err = NewElevenLabsTranscriber(ElevenLabsConfig{}, nil)
	assert.Error(t, err)
}

func TestOpenAISynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tts-1", body["model"])
		assert.Equal(t, "alloy", body["voice"])
		assert.Equal(t, "On my way.", body["input"])
		w.Write(fakeMP3)
	}))
	defer srv.Close()

	s, err := NewOpenAISynthesizer(OpenAITTSConfig{BaseURL: srv.URL + "/v1", APIKey: "k", CacheDir: t.TempDir()}, quietLogger())
	require.NoError(t, err)

	path, err := s.Synthesize(context.Background(), "On my way.")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fakeMP3, data)
}

func TestCommandPlayer(t *testing.T) {
	path := writeRecording(t)
	assert.NoError(t, CommandPlayer{Command: "cat"}.Play(context.Background(), path))
	assert.Error(t, CommandPlayer{Command: "false"}.Play(context.Background(), path))
}
