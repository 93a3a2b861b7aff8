// Package speech adapts the external transcription and text-to-speech
// services the voice pipeline depends on.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sashabaranov/go-openai"

	"github.com/ahtavarasmus/TextAndDrive/internal/httperr"
)

// Transcriber turns a recorded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Synthesizer turns text into a playable audio file and returns its path.
// The caller owns the file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Player plays an audio file to completion.
type Player interface {
	Play(ctx context.Context, audioPath string) error
}

// writeTemp copies r into a new file in dir. The file is removed again if
// copying fails or ctx ends first.
func writeTemp(ctx context.Context, dir, pattern string, r io.Reader) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("create audio cache dir: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr, ctx.Err()); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return f.Name(), nil
}

// fromOpenAI converts go-openai's error types into httperr.Error so callers
// see one error shape for every speech vendor.
func fromOpenAI(service string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &httperr.Error{Service: service, StatusCode: apiErr.HTTPStatusCode, Detail: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		detail := httperr.Detail(reqErr.Body)
		if detail == "" && reqErr.Err != nil {
			detail = reqErr.Err.Error()
		}
		return &httperr.Error{Service: service, StatusCode: reqErr.HTTPStatusCode, Detail: detail}
	}
	return err
}
