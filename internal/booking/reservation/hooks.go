package reservation

import "time"

// Hooks captures protocol-level observability events. The noop default keeps
// the service testable without a metrics backend.
type Hooks interface {
	ObserveCreate(strategy, status string, dur time.Duration)
	IncConflict(strategy string)
	SetRemaining(slotDate string, remaining float64)
}

type noopHooks struct{}

func (noopHooks) ObserveCreate(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                          {}
func (noopHooks) SetRemaining(string, float64)                {}
