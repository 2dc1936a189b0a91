package stage

import (
	"strconv"
	"strings"

	"github.com/flarebyte/apk-forge/internal/procexec"
)

// Kind classifies a stage failure.
type Kind string

const (
	// KindExec is an external tool failure: non-zero exit or diagnostic output.
	KindExec Kind = "exec"
	// KindIO is a filesystem failure or a missing tool binary.
	KindIO Kind = "io"
	// KindInternal is an unexpected failure such as a recovered panic.
	KindInternal Kind = "internal"
)

// Error is a structured stage failure.
type Error struct {
	Stage   string `json:"stage" yaml:"stage"`
	Kind    Kind   `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

func (e *Error) Error() string { return e.Stage + ": " + sanitizeErrorMessage(e.Message) }

func ioError(stage string, err error) *Error {
	return &Error{Stage: stage, Kind: KindIO, Message: err.Error()}
}

func sanitizeErrorMessage(msg string) string {
	s := strings.Join(strings.Fields(msg), " ")
	if s == "" {
		return "error"
	}
	return s
}

func itoa(n int) string { return strconv.Itoa(n) }

// failureText describes a failed run that produced no diagnostic output.
func failureText(program string, res procexec.Result) string {
	if res.Err != nil {
		return program + ": " + res.Err.Error() + "\n"
	}
	return program + " exited with status " + itoa(res.ExitCode) + "\n"
}
