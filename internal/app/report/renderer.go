package report

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/ahrav/piiguard/internal/config"
	domain "github.com/ahrav/piiguard/internal/domain/scanning"
)

// ruleWidth is the width of the separator between file blocks.
const ruleWidth = 80

// Renderer writes a scan result. Structured formats contain findings only;
// skipped and failed files go through Diagnostics.
type Renderer interface {
	Render(w io.Writer, res *domain.Result) error
}

// New returns the renderer for format.
func New(format config.OutputFormat) (Renderer, error) {
	switch format {
	case config.FormatText, "":
		return TextRenderer{}, nil
	case config.FormatJSON:
		return JSONRenderer{}, nil
	case config.FormatCSV:
		return CSVRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// sortedReports orders file reports by path so output is stable across runs
// even though files complete in any order.
func sortedReports(res *domain.Result) []domain.FileReport {
	reports := slices.Clone(res.Reports)
	slices.SortFunc(reports, func(a, b domain.FileReport) int { return cmp.Compare(a.Path, b.Path) })
	return reports
}

// TextRenderer writes human-readable blocks followed by a summary line.
type TextRenderer struct{}

func (TextRenderer) Render(w io.Writer, res *domain.Result) error {
	rule := strings.Repeat("=", ruleWidth)
	var b strings.Builder

	reports := sortedReports(res)
	if len(reports) == 0 {
		b.WriteString("No issues found.\n")
	}
	for _, rep := range reports {
		lines := Lines(rep)
		b.WriteString(rule + "\n")
		fmt.Fprintf(&b, "%s: %d finding(s), %d critical\n", rep.Path, rep.FindingCount(), len(rep.Critical))
		for _, l := range lines {
			fmt.Fprintf(&b, " - %s\n", l)
			if l.Context != "" {
				b.WriteString("     Context:\n")
				fmt.Fprintf(&b, "       %s\n", oneLine(l.Context))
			}
		}
	}
	if len(reports) > 0 {
		b.WriteString(rule + "\n")
	}
	b.WriteString(Summary(res) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Summary is the one-line scan summary printed at the end of a text report.
func Summary(res *domain.Result) string {
	mode := "diff"
	if res.Full {
		mode = "full"
	}
	return fmt.Sprintf("Scanned %d file(s) (%s scan): %d with issues, %d skipped, %d errored. Scan %s finished in %s.",
		res.Selected, mode, res.FilesWithIssues(), res.Skipped(), res.Errored(), res.ID, res.Duration.Round(time.Millisecond))
}

type jsonFile struct {
	File   string   `json:"file"`
	Issues []string `json:"issues"`
}

// JSONRenderer writes an array of {file, issues} objects.
type JSONRenderer struct{}

func (JSONRenderer) Render(w io.Writer, res *domain.Result) error {
	files := make([]jsonFile, 0, len(res.Reports))
	for _, rep := range sortedReports(res) {
		lines := Lines(rep)
		issues := make([]string, 0, len(lines))
		for _, l := range lines {
			issues = append(issues, l.String())
		}
		files = append(files, jsonFile{File: rep.Path, Issues: issues})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(files); err != nil {
		return fmt.Errorf("failed to encode json report: %w", err)
	}
	return nil
}

// CSVRenderer writes a file,issue_type,details header followed by one row per
// detail line. Every field is quoted and embedded quotes are doubled.
type CSVRenderer struct{}

func (CSVRenderer) Render(w io.Writer, res *domain.Result) error {
	var b strings.Builder
	b.WriteString("file,issue_type,details\n")
	for _, rep := range sortedReports(res) {
		for _, l := range Lines(rep) {
			b.WriteString(csvRow(rep.Path, string(l.IssueType), l.Details))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func csvRow(fields ...string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",") + "\n"
}
