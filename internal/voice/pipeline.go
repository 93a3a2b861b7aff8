// Package voice runs a recorded utterance through transcription, one agent
// turn and speech synthesis.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ahtavarasmus/TextAndDrive/internal/agent"
	"github.com/ahtavarasmus/TextAndDrive/internal/history"
	"github.com/ahtavarasmus/TextAndDrive/internal/metrics"
	"github.com/ahtavarasmus/TextAndDrive/internal/speech"
)

// Turner runs one agent turn. *agent.Agent implements it.
type Turner interface {
	ProcessTurn(ctx context.Context, sess *history.Session, req agent.TurnRequest) (*agent.TurnResult, error)
}

// Config tunes the pipeline.
type Config struct {
	// RemoveRecordings deletes the input recording once the turn is over.
	RemoveRecordings bool
}

// Outcome is what one recording produced. AudioPath is empty when nothing was
// synthesized; the caller owns the file and releases it with Cleanup.
type Outcome struct {
	Transcript string
	Turn       *agent.TurnResult
	AudioPath  string
	Played     bool
}

// Cleanup removes the synthesized audio, if any.
func (o *Outcome) Cleanup() error {
	if o == nil || o.AudioPath == "" {
		return nil
	}
	err := os.Remove(o.AudioPath)
	o.AudioPath = ""
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Pipeline wires the speech adapters around the agent. The synthesizer and
// player are optional.
type Pipeline struct {
	stt     speech.Transcriber
	turns   Turner
	tts     speech.Synthesizer
	player  speech.Player
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithSynthesizer(s speech.Synthesizer) Option {
	return func(p *Pipeline) { p.tts = s }
}

func WithPlayer(pl speech.Player) Option {
	return func(p *Pipeline) { p.player = pl }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(stt speech.Transcriber, turns Turner, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{stt: stt, turns: turns, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleRecording transcribes audioPath and runs a turn on the transcript.
// Transcription and LLM failures are returned; synthesis and playback
// failures only cost the spoken confirmation. If ctx ends before the audio is
// handed back it is removed and ctx's error returned alongside the outcome.
func (p *Pipeline) HandleRecording(ctx context.Context, sess *history.Session, audioPath string) (*Outcome, error) {
	start := time.Now()
	if p.cfg.RemoveRecordings {
		defer func() {
			if err := os.Remove(audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				p.logger.Warn("failed to remove recording", "file", audioPath, "error", err)
			}
		}()
	}

	transcript, err := p.stt.Transcribe(ctx, audioPath)
	p.metrics.ObserveSpeech("transcribe", err)
	if err != nil {
		p.logger.Error("transcription failed", "session", sess.ID, "error", err)
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	p.logger.Info("recording transcribed", "session", sess.ID, "duration", time.Since(start),
		"transcript_length", len(transcript))

	out := &Outcome{Transcript: transcript}
	out.Turn, err = p.turns.ProcessTurn(ctx, sess, agent.TurnRequest{Transcript: transcript})
	if err != nil {
		return out, err
	}
	if out.Turn.Confirmation == "" || p.tts == nil {
		return out, nil
	}

	path, err := p.tts.Synthesize(ctx, out.Turn.Confirmation)
	p.metrics.ObserveSpeech("synthesize", err)
	if err != nil {
		p.logger.Warn("speech synthesis failed, skipping playback", "session", sess.ID, "error", err)
		return out, nil
	}
	out.AudioPath = path

	if p.player != nil && ctx.Err() == nil {
		err := p.player.Play(ctx, path)
		p.metrics.ObserveSpeech("play", err)
		if err != nil {
			p.logger.Warn("playback failed", "session", sess.ID, "file", path, "error", err)
		} else {
			out.Played = true
		}
	}

	if err := ctx.Err(); err != nil {
		if cerr := out.Cleanup(); cerr != nil {
			p.logger.Warn("failed to remove synthesized audio", "session", sess.ID, "file", path, "error", cerr)
		}
		return out, err
	}
	p.logger.Info("recording handled", "session", sess.ID, "duration", time.Since(start),
		"source", out.Turn.Source, "audio", out.AudioPath != "")
	return out, nil
}
