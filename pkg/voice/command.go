package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Exit codes understood from speech-to-text commands.
const (
	ExitNoMicrophone     = 2
	ExitPermissionDenied = 3
	ExitNoSpeech         = 4
)

// CommandRecognizer runs an external program that listens once and prints
// the transcript on stdout. The language is passed in YATRA_VOICE_LANG.
type CommandRecognizer struct {
	path string
	args []string
}

// NewCommandRecognizer returns ErrUnsupported when the command is empty or
// cannot be found.
func NewCommandRecognizer(command []string) (*CommandRecognizer, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, ErrUnsupported
	}
	path, err := exec.LookPath(command[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return &CommandRecognizer{path: path, args: command[1:]}, nil
}

func (r *CommandRecognizer) Recognize(ctx context.Context, language string) (string, error) {
	cmd := exec.CommandContext(ctx, r.path, r.args...)
	cmd.Env = append(os.Environ(), "YATRA_VOICE_LANG="+language)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			switch exitErr.ExitCode() {
			case ExitNoMicrophone:
				return "", fmt.Errorf("%w: %s", ErrNoMicrophone, msg)
			case ExitPermissionDenied:
				return "", fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
			case ExitNoSpeech:
				return "", fmt.Errorf("%w: %s", ErrNoSpeech, msg)
			}
		}
		return "", fmt.Errorf("%w: %v: %s", ErrNetwork, err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
