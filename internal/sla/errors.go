package sla

import "errors"

var (
	// ErrPolicyNotFound is returned when neither the monitor nor the
	// project carries an applicable communication SLA policy. Callers must
	// not start a timer in that case.
	ErrPolicyNotFound = errors.New("no applicable communication sla policy")
)
