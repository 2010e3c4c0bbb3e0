package domain

import "time"

// AuditEventType names a security-relevant session event.
type AuditEventType string

const (
	AuditLoginSucceeded  AuditEventType = "login.succeeded"
	AuditLoginFailed     AuditEventType = "login.failed"
	AuditRegistered      AuditEventType = "account.registered"
	AuditLogout          AuditEventType = "logout"
	AuditRefreshRotated  AuditEventType = "refresh.rotated"
	AuditRefreshReplayed AuditEventType = "refresh.replayed"
	AuditRefreshExpired  AuditEventType = "refresh.expired"
	AuditUserDeactivated AuditEventType = "user.deactivated"
	AuditUserReactivated AuditEventType = "user.reactivated"
	AuditTokensPurged    AuditEventType = "tokens.purged"
)

// AuditEvent is one entry of the authentication audit trail.
type AuditEvent struct {
	Type       AuditEventType
	UserID     string
	TenantID   string
	TokenID    string
	ActorID    string
	Email      string
	IPAddress  string
	UserAgent  string
	Reason     string
	Count      int64
	OccurredAt time.Time
}
