package ui

import (
	"fmt"
	"io"

	"github.com/desertthunder/dird/internal/engine"
)

// Progress prints updates from ch to w until ch is closed.
//
// Failed sources are drawn as warnings; the final [engine.Done] update is not printed.
func (p *Palette) Progress(w io.Writer, ch <-chan engine.ProgressUpdate) {
	for update := range ch {
		if line := p.progressLine(update); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

func (p *Palette) progressLine(u engine.ProgressUpdate) string {
	switch u.Phase {
	case engine.Pending:
		return p.Title(u.Message)
	case engine.FannedOut:
		if sp, ok := u.Data.(engine.SourceProgress); ok && sp.Err != nil {
			return p.Warn(u.Message)
		}
		return u.Message
	case engine.Merged, engine.Annotated, engine.Paginated:
		return p.Help(u.Message)
	default:
		return ""
	}
}
