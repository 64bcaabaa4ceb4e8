package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// HealthState classifies a backend's availability.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// String returns the string representation of the state.
func (s HealthState) String() string {
	return string(s)
}

// IsValid reports whether the state is one of the known values.
func (s HealthState) IsValid() bool {
	switch s {
	case HealthStateHealthy, HealthStateDegraded, HealthStateUnhealthy:
		return true
	default:
		return false
	}
}

// UnmarshalJSON validates the state on the way in.
func (s *HealthState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state := HealthState(str)
	if !state.IsValid() {
		return fmt.Errorf("invalid health state: %s", str)
	}
	*s = state
	return nil
}

// HealthStatus reports a component's state with a human-readable message.
// Degraded means the component is usable but one of its backends is not;
// callers that can operate in degraded mode should check IsUnhealthy, not
// IsHealthy.
type HealthStatus struct {
	State     HealthState `json:"state"`
	Message   string      `json:"message,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// NewHealthStatus builds a status with CheckedAt set to now.
func NewHealthStatus(state HealthState, message string) HealthStatus {
	return HealthStatus{State: state, Message: message, CheckedAt: time.Now()}
}

// Healthy builds a healthy status.
func Healthy(message string) HealthStatus {
	return NewHealthStatus(HealthStateHealthy, message)
}

// Degraded builds a degraded status.
func Degraded(message string) HealthStatus {
	return NewHealthStatus(HealthStateDegraded, message)
}

// Unhealthy builds an unhealthy status.
func Unhealthy(message string) HealthStatus {
	return NewHealthStatus(HealthStateUnhealthy, message)
}

// IsHealthy reports whether the state is healthy.
func (h HealthStatus) IsHealthy() bool {
	return h.State == HealthStateHealthy
}

// IsDegraded reports whether the state is degraded.
func (h HealthStatus) IsDegraded() bool {
	return h.State == HealthStateDegraded
}

// IsUnhealthy reports whether the state is unhealthy.
func (h HealthStatus) IsUnhealthy() bool {
	return h.State == HealthStateUnhealthy
}
