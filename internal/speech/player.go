package speech

import (
	"context"
	"fmt"
	"os/exec"
)

// CommandPlayer plays files with an external program such as mpv or afplay.
type CommandPlayer struct {
	Command string
	Args    []string
}

func (p CommandPlayer) Play(ctx context.Context, audioPath string) error {
	args := append(append([]string{}, p.Args...), audioPath)
	out, err := exec.CommandContext(ctx, p.Command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("play %s: %w: %s", audioPath, err, out)
	}
	return nil
}
