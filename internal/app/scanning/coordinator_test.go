package scanning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/piiguard/internal/domain/detection"
	domain "github.com/ahrav/piiguard/internal/domain/scanning"
	"github.com/ahrav/piiguard/pkg/common/logger"
)

type fakeSelector struct {
	paths []string
	err   error
}

func (f fakeSelector) Select(context.Context, bool) ([]string, error) { return f.paths, f.err }

type fakeProcessor struct {
	results map[string]detection.FileResult
	delay   time.Duration

	mu        sync.Mutex
	processed []string
	active    atomic.Int32
	peak      atomic.Int32
}

func (f *fakeProcessor) Process(_ context.Context, path string) detection.FileResult {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.processed = append(f.processed, path)
	f.mu.Unlock()

	if res, ok := f.results[path]; ok {
		return res
	}
	return detection.FileResult{Path: path}
}

func isCritical(t string) bool { return t == "SSN" || t == "AWS_SECRET_KEY" }

func newTestCoordinator(t *testing.T, full bool, workers int, sel FileSelector, proc FileProcessor) *Coordinator {
	t.Helper()
	m, err := NewScanMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)
	return NewCoordinator(full, workers, sel, proc, isCritical, logger.Noop(), noop.NewTracerProvider().Tracer("test"), m)
}

func TestCoordinator_Run(t *testing.T) {
	proc := &fakeProcessor{results: map[string]detection.FileResult{
		"secrets.env": {Path: "secrets.env", Findings: []detection.Finding{
			detection.NewPatternFinding("Generic password assignment", `password = "abc123"`, 0),
		}},
		"people.csv": {Path: "people.csv", Findings: []detection.Finding{
			detection.NewPIIFinding("SSN", 0.99, "123-45-6789", "ssn 123-45-6789", 4),
			detection.NewPIIFinding("EMAIL", 0.95, "a@x.io", "", 30),
		}},
		"huge.log":   {Path: "huge.log", Error: "skipped: file too large", Skipped: true},
		"broken.txt": {Path: "broken.txt", Error: "failed to decode file"},
	}}
	paths := []string{"clean.go", "secrets.env", "people.csv", "huge.log", "broken.txt"}

	c := newTestCoordinator(t, true, 3, fakeSelector{paths: paths}, proc)
	assert.Equal(t, domain.ScanStatusIdle, c.Status())

	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ScanStatusDone, c.Status())
	assert.Equal(t, domain.ScanStatusDone, res.Status)
	assert.Equal(t, 5, res.Selected)
	assert.ElementsMatch(t, paths, proc.processed)
	assert.True(t, res.HasIssues())
	assert.Equal(t, 2, res.FilesWithIssues())
	assert.Equal(t, 1, res.Skipped())
	assert.Equal(t, 1, res.Errored())

	var reported []string
	for _, r := range res.Reports {
		reported = append(reported, r.Path)
	}
	assert.ElementsMatch(t, []string{"secrets.env", "people.csv"}, reported)
}

func TestCoordinator_Run_NoFindingsIsClean(t *testing.T) {
	proc := &fakeProcessor{results: map[string]detection.FileResult{
		"big.bin": {Path: "big.bin", Error: "skipped: file too large", Skipped: true},
	}}
	c := newTestCoordinator(t, true, 2, fakeSelector{paths: []string{"a.go", "b.go", "big.bin"}}, proc)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.HasIssues(), "skipped files never count as issues")
	assert.Len(t, res.Failures, 1)
}

func TestCoordinator_Run_EmptySelection(t *testing.T) {
	tests := []struct {
		name       string
		full       bool
		wantErr    error
		wantStatus domain.ScanStatus
	}{
		{name: "full scan fails", full: true, wantErr: ErrNoFilesSelected, wantStatus: domain.ScanStatusFailed},
		{name: "diff scan is clean", full: false, wantStatus: domain.ScanStatusDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{}
			c := newTestCoordinator(t, tt.full, 4, fakeSelector{}, proc)

			res, err := c.Run(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, res)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.False(t, res.HasIssues())
			assert.Empty(t, proc.processed)
		})
	}
}

func TestCoordinator_Run_SelectionError(t *testing.T) {
	selErr := errors.New("walk failed")
	c := newTestCoordinator(t, true, 1, fakeSelector{err: selErr}, &fakeProcessor{})

	_, err := c.Run(context.Background())
	require.ErrorIs(t, err, selErr)
	assert.Equal(t, domain.ScanStatusFailed, c.Status())
}

func TestCoordinator_Run_BoundedParallelism(t *testing.T) {
	paths := make([]string, 12)
	for i := range paths {
		paths[i] = fmt.Sprintf("file-%02d.txt", i)
	}
	proc := &fakeProcessor{delay: 10 * time.Millisecond}
	c := newTestCoordinator(t, true, 3, fakeSelector{paths: paths}, proc)

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, paths, proc.processed)
	assert.LessOrEqual(t, proc.peak.Load(), int32(3))
	assert.GreaterOrEqual(t, proc.peak.Load(), int32(1))
}

func TestCoordinator_Run_SingleUse(t *testing.T) {
	c := newTestCoordinator(t, false, 1, fakeSelector{}, &fakeProcessor{})

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	assert.Error(t, err)
}

func TestCoordinator_Run_Cancelled(t *testing.T) {
	paths := make([]string, 200)
	for i := range paths {
		paths[i] = fmt.Sprintf("f%d", i)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCoordinator(t, true, 2, fakeSelector{paths: paths}, &fakeProcessor{})
	_, err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.ScanStatusFailed, c.Status())
}

func TestAggregate(t *testing.T) {
	email := func(i int, score float64) detection.Finding {
		return detection.NewPIIFinding("EMAIL", score, fmt.Sprintf("u%d@x.io", i), "", i*10)
	}
	res := detection.FileResult{
		Path: "list.txt",
		Findings: []detection.Finding{
			detection.NewPatternFinding("token", "tok-1", 0),
			email(1, 0.90),
			detection.NewPIIFinding("SSN", 0.99, "123-45-6789", "ctx", 5),
			email(2, 0.97),
			detection.NewPIIFinding("PHONE", 0.91, "555-0100", "", 60),
			email(3, 0.86),
			email(4, 0.93),
			email(5, 0.88),
			detection.NewPIIFinding("AWS_SECRET_KEY", 0.95, "k", "ctx", 90),
			detection.NewPatternFinding("token", "tok-2", 100),
		},
	}

	rep := Aggregate(res, isCritical)

	require.Len(t, rep.Critical, 2)
	assert.Equal(t, "SSN", rep.Critical[0].EntityType)
	assert.Equal(t, "AWS_SECRET_KEY", rep.Critical[1].EntityType)

	require.Len(t, rep.Groups, 3)
	assert.Equal(t, "EMAIL", rep.Groups[0].EntityType)
	assert.Equal(t, "PHONE", rep.Groups[1].EntityType)
	assert.Equal(t, "Regex: token", rep.Groups[2].EntityType)

	emails := rep.Groups[0]
	assert.True(t, emails.Consolidated())
	assert.Equal(t, 5, emails.Count())
	best, ok := emails.BestScore()
	require.True(t, ok)
	assert.InDelta(t, 0.97, best, 1e-9)

	assert.False(t, rep.Groups[1].Consolidated())
	assert.Equal(t, 2, rep.Groups[2].Count())
}

func TestAggregate_ConsolidationCountProperty(t *testing.T) {
	for n := 1; n <= 10; n++ {
		var findings []detection.Finding
		for i := range n {
			findings = append(findings, detection.NewPIIFinding("NAME", 0.9, fmt.Sprintf("n%d", i), "", i))
		}
		rep := Aggregate(detection.FileResult{Path: "p", Findings: findings}, isCritical)

		require.Len(t, rep.Groups, 1)
		assert.Equal(t, n, rep.Groups[0].Count())
		assert.Equal(t, n > domain.ConsolidationThreshold, rep.Groups[0].Consolidated())
	}
}
