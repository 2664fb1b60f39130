// Package common holds small value types shared by every layer: identifiers,
// health reporting and the response envelope used by the HTTP API.
package common

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID is an opaque identifier (UUID v4 unless a store assigns its own scheme).
type ID string

// NewID returns a fresh random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// GenerateID returns a prefixed random identifier such as "run-3f2a…".
func GenerateID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// IsZero reports whether id is empty after trimming.
func (id ID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// HealthStatus is the coarse health of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth reports the health of one dependency.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ns,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// ErrorDetail is the error payload of APIResponse.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// APIResponse is the uniform HTTP response envelope.
type APIResponse[T any] struct {
	Success bool         `json:"success"`
	Data    T            `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}
