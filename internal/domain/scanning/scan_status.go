package scanning

import "fmt"

// ScanStatus is the lifecycle state of a single scan run.
type ScanStatus string

const (
	// ScanStatusIdle indicates the scan has been created but not started.
	ScanStatusIdle ScanStatus = "IDLE"

	// ScanStatusSelecting indicates the scan is enumerating files.
	ScanStatusSelecting ScanStatus = "SELECTING"

	// ScanStatusRunning indicates file workers are processing the selection.
	ScanStatusRunning ScanStatus = "RUNNING"

	// ScanStatusAggregating indicates per-file results are being grouped.
	ScanStatusAggregating ScanStatus = "AGGREGATING"

	// ScanStatusDone indicates the scan finished and a verdict is available.
	ScanStatusDone ScanStatus = "DONE"

	// ScanStatusFailed indicates the scan could not produce a verdict.
	ScanStatusFailed ScanStatus = "FAILED"
)

func (s ScanStatus) String() string { return string(s) }

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s ScanStatus) ValidateTransition(target ScanStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid scan status transition from %s to %s", s, target)
	}
	return nil
}

func (s ScanStatus) isValidTransition(target ScanStatus) bool {
	switch s {
	case ScanStatusIdle:
		return target == ScanStatusSelecting
	case ScanStatusSelecting:
		// An empty diff selection finishes without running anything.
		return target == ScanStatusRunning || target == ScanStatusDone || target == ScanStatusFailed
	case ScanStatusRunning:
		return target == ScanStatusAggregating || target == ScanStatusFailed
	case ScanStatusAggregating:
		return target == ScanStatusDone || target == ScanStatusFailed
	case ScanStatusDone, ScanStatusFailed:
		return false
	default:
		return false
	}
}
