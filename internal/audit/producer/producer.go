// Package producer defines the interface for streaming audit entries to an
// external bus (e.g. Kafka) for downstream analytics.
package producer

import (
	"context"

	"fitclub-access/internal/audit/domain"
)

// Producer emits audit entries. Callers use it best-effort: log and ignore
// errors; the Postgres audit table remains the system of record.
type Producer interface {
	// Emit sends one audit entry. May block briefly; call from a goroutine if
	// the caller is latency-sensitive.
	Emit(ctx context.Context, e *domain.Entry) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}
