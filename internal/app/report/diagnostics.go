package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/ahrav/piiguard/internal/domain/detection"
	domain "github.com/ahrav/piiguard/internal/domain/scanning"
)

const skippedPrefix = "skipped: "

// Diagnostics prints labelled lines for files that were skipped or failed.
// They are kept apart from the report so structured output stays parseable.
type Diagnostics struct {
	out     io.Writer
	skipped *color.Color
	errored *color.Color
}

// NewDiagnostics writes to w, coloring labels when colored is true.
func NewDiagnostics(w io.Writer, colored bool) *Diagnostics {
	d := &Diagnostics{
		out:     w,
		skipped: color.New(color.FgYellow),
		errored: color.New(color.FgRed, color.Bold),
	}
	if colored {
		d.skipped.EnableColor()
		d.errored.EnableColor()
	} else {
		d.skipped.DisableColor()
		d.errored.DisableColor()
	}
	return d
}

// Failures prints one line per skipped or failed file, ordered by path.
func (d *Diagnostics) Failures(res *domain.Result) {
	failures := slices.Clone(res.Failures)
	slices.SortFunc(failures, func(a, b detection.FileResult) int { return cmp.Compare(a.Path, b.Path) })

	for _, f := range failures {
		if f.Skipped {
			d.line(d.skipped, "[SKIPPED]", f.Path+": "+strings.TrimPrefix(f.Error, skippedPrefix))
			continue
		}
		d.line(d.errored, "[ERROR]", f.Path+": "+f.Error)
	}
}

// Error prints a scan-level error.
func (d *Diagnostics) Error(err error) {
	d.line(d.errored, "[ERROR]", err.Error())
}

func (d *Diagnostics) line(c *color.Color, label, msg string) {
	fmt.Fprintf(d.out, "%s %s\n", c.Sprint(label), msg)
}
