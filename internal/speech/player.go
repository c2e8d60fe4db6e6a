package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ExecPlayer plays a clip by writing it to a temporary file and running an
// external command such as "ffplay -nodisp -autoexit {file}". The
// placeholder {file} is replaced by the temporary path; without one the
// path is appended.
type ExecPlayer struct {
	args []string
}

// NewExecPlayer parses a whitespace-separated command line.
func NewExecPlayer(command string) (*ExecPlayer, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, errors.New("speech: empty player command")
	}
	return &ExecPlayer{args: args}, nil
}

func (p *ExecPlayer) Play(ctx context.Context, clip *Clip) error {
	audio := clip.Audio()
	if audio == nil {
		return errors.New("speech: clip already released")
	}

	f, err := os.CreateTemp("", "vidyadost-*"+extension(clip.ContentType))
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audio file: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.args[0], p.commandArgs(path)...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("run player %s: %w", p.args[0], err)
	}
	return nil
}

func (p *ExecPlayer) commandArgs(path string) []string {
	out := make([]string, 0, len(p.args))
	replaced := false
	for _, a := range p.args[1:] {
		if strings.Contains(a, "{file}") {
			a = strings.ReplaceAll(a, "{file}", path)
			replaced = true
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, path)
	}
	return out
}

func extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return ".mp3"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	case strings.Contains(contentType, "webm"):
		return ".webm"
	default:
		return ".wav"
	}
}

// NullPlayer discards audio. Used when speech output is disabled.
type NullPlayer struct{}

func (NullPlayer) Play(ctx context.Context, _ *Clip) error {
	return ctx.Err()
}
