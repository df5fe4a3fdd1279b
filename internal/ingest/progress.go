package ingest

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ProgressReporter receives ingestion progress. Start is called once with
// the total document count before any batch runs.
type ProgressReporter interface {
	Start(total int)
	Increment(n int)
	Finish()
}

// Bar renders progress to stderr.
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar creates an unstarted progress bar.
func NewBar() *Bar {
	return &Bar{}
}

func (b *Bar) Start(total int) {
	if total <= 0 {
		return
	}
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("ingesting"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (b *Bar) Increment(n int) {
	if b.bar == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Finish() {
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}

// StderrIsTerminal reports whether stderr is attached to a terminal, the
// default condition for enabling progress output.
func StderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
