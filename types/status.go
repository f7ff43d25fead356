// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package types

// RunStatus is the tri-state outcome of a workflow run. RUNNING exists only
// for persistence of in-flight runs; a finished run is always exactly one of
// SUCCESS, DEGRADED, or FAILED.
type RunStatus string

const (
	RunRunning  RunStatus = "RUNNING"
	RunSuccess  RunStatus = "SUCCESS"
	RunDegraded RunStatus = "DEGRADED"
	RunFailed   RunStatus = "FAILED"
)

// DeriveStatus computes the final status from what the run accumulated.
// Any fatal error wins. A clean completion with warnings is DEGRADED, and
// SUCCESS requires zero warnings and zero errors.
func DeriveStatus(warnings int, fatal bool) RunStatus {
	switch {
	case fatal:
		return RunFailed
	case warnings > 0:
		return RunDegraded
	default:
		return RunSuccess
	}
}

// Terminal reports whether the status is a finished state.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunDegraded || s == RunFailed
}
