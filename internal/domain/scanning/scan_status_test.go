package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanStatus_ValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		current ScanStatus
		target  ScanStatus
		wantErr bool
	}{
		{name: "Idle to Selecting is valid", current: ScanStatusIdle, target: ScanStatusSelecting},
		{name: "Selecting to Running is valid", current: ScanStatusSelecting, target: ScanStatusRunning},
		{name: "Selecting to Done is valid", current: ScanStatusSelecting, target: ScanStatusDone},
		{name: "Selecting to Failed is valid", current: ScanStatusSelecting, target: ScanStatusFailed},
		{name: "Running to Aggregating is valid", current: ScanStatusRunning, target: ScanStatusAggregating},
		{name: "Aggregating to Done is valid", current: ScanStatusAggregating, target: ScanStatusDone},
		{name: "Idle to Running is invalid", current: ScanStatusIdle, target: ScanStatusRunning, wantErr: true},
		{name: "Running to Done is invalid", current: ScanStatusRunning, target: ScanStatusDone, wantErr: true},
		{name: "Done is terminal", current: ScanStatusDone, target: ScanStatusSelecting, wantErr: true},
		{name: "Failed is terminal", current: ScanStatusFailed, target: ScanStatusDone, wantErr: true},
		{name: "unknown status", current: ScanStatus("BOGUS"), target: ScanStatusDone, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.current.ValidateTransition(tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
