// Package audit records password-reset state transitions. Every requested,
// completed, failed, and expired transition gets exactly one entry, so no
// failure path is silent.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"fitclub-access/internal/audit/domain"
	auditproducer "fitclub-access/internal/audit/producer"
	auditrepo "fitclub-access/internal/audit/repository"
)

// Recorder writes a single audit entry. Record is best-effort: failures are
// logged and do not affect the caller.
type Recorder interface {
	Record(ctx context.Context, userID, userType, email string, action domain.Action, details string)
}

// Logger implements Recorder using the audit repository and an optional
// entry stream producer.
type Logger struct {
	repo     auditrepo.Repository
	producer auditproducer.Producer
	nowF     func() time.Time
}

// NewLogger returns a Recorder that persists to repo and, when producer is
// non-nil, streams each entry to it fire-and-forget.
func NewLogger(repo auditrepo.Repository, producer auditproducer.Producer) *Logger {
	return &Logger{repo: repo, producer: producer, nowF: time.Now().UTC}
}

// Record writes one audit entry. Best-effort: errors are logged, never
// returned, so an audit failure cannot turn a successful reset into a failed
// one.
func (l *Logger) Record(ctx context.Context, userID, userType, email string, action domain.Action, details string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.Entry{
		ID:        uuid.New().String(),
		UserID:    userID,
		UserType:  userType,
		Email:     email,
		Action:    action,
		Details:   details,
		CreatedAt: l.nowF(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to record %s for %s: %v", action, email, err)
		return
	}
	if l.producer != nil {
		// Detached context: request cancellation must not abort an in-flight emit.
		go func() {
			emitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.producer.Emit(emitCtx, entry); err != nil {
				log.Printf("audit: stream emit failed: %v", err)
			}
		}()
	}
}
