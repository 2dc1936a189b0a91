package build

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/pipeline"
	"github.com/flarebyte/apk-forge/internal/stage"
)

type summary struct {
	OK          bool   `json:"ok"`
	Message     string `json:"message"`
	FailedStage string `json:"failedStage,omitempty"`
	ErrorKind   string `json:"errorKind,omitempty"`
	Archive     string `json:"archive,omitempty"`
}

// writeSummary prints the outcome as a single JSON line.
func writeSummary(w io.Writer, cfg config.Build, out pipeline.Outcome) error {
	s := summary{OK: !out.Failed, Message: out.Message, FailedStage: out.FailedStage}
	if out.Err != nil {
		s.ErrorKind = string(out.Err.Kind)
	}
	if !out.Failed && action != stage.ActionCompile {
		s.Archive = cfg.ArchivePath()
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

func failureLine(out pipeline.Outcome) string {
	msg := "build failed"
	if out.FailedStage != "" {
		msg += " at " + out.FailedStage
	}
	diag := strings.TrimSpace(out.Diagnostic)
	if i := strings.IndexByte(diag, '\n'); i >= 0 {
		diag = diag[:i]
	}
	if diag != "" {
		msg += ": " + diag
	}
	return msg
}
