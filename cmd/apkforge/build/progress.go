package build

import (
	"fmt"
	"io"

	"github.com/flarebyte/apk-forge/internal/pipeline"
)

type progressPrinter struct {
	enabled bool
	w       io.Writer
}

func newProgressPrinter(w io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{enabled: enabled, w: w}
}

func (p *progressPrinter) handle(ev pipeline.Event) {
	if !p.enabled || p.w == nil || ev.Kind != pipeline.EventProgress {
		return
	}
	_, _ = fmt.Fprintf(p.w, "progress stage=%s message=%s\n", ev.Stage, ev.Message)
}
