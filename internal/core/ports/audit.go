package ports

import (
	"context"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

// AuditSink receives audit events. Record must not block the request path.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent)
}

// AuditRepository persists audit events.
type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
}
