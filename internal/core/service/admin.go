package service

import (
	"context"
	"errors"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

// SetUserActive deactivates or reactivates a member of the actor's tenant.
// Deactivation also revokes every refresh token the target holds, so the
// change takes effect on the next refresh or session lookup.
func (s *sessionService) SetUserActive(ctx context.Context, actor *ports.Session, userID string, active bool) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}
	if !actor.HasRole(domain.RoleOwner, domain.RoleAdmin) {
		return domain.ErrForbidden
	}
	if userID == "" {
		return domain.NewValidationError("id", "id is required")
	}
	if userID == actor.User.ID {
		return domain.ErrForbidden
	}

	target, err := s.creds.FindMembership(ctx, userID, actor.Tenant.ID)
	if err != nil {
		if errors.Is(err, domain.ErrMembershipNotFound) {
			return domain.ErrUserNotFound
		}
		return domain.Internal("set active: find membership", err)
	}
	if !actor.User.Role.CanManage(target.Role) {
		return domain.ErrForbidden
	}

	now := s.now().UTC()
	if err := s.creds.SetUserActive(ctx, userID, active, now); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return domain.Internal("set active: update user", err)
	}

	ev := domain.AuditEvent{
		Type:     domain.AuditUserReactivated,
		UserID:   userID,
		TenantID: actor.Tenant.ID,
		ActorID:  actor.User.ID,
	}
	if !active {
		ev.Type = domain.AuditUserDeactivated
		n, err := s.tokens.RevokeAllForUser(ctx, userID, now)
		if err != nil {
			// The user is already inactive, which blocks rotation on its own.
			s.log.Warn().Err(err).Str("user_id", userID).Msg("revoke tokens of deactivated user failed")
		}
		ev.Count = n
	}
	s.record(ctx, ev)

	s.log.Info().
		Str("user_id", userID).
		Str("actor_id", actor.User.ID).
		Bool("active", active).
		Msg("user status changed")
	return nil
}

// PurgeInactiveTokens deletes refresh records that are revoked or expired.
func (s *sessionService) PurgeInactiveTokens(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteInactive(ctx, s.now().UTC())
	if err != nil {
		return 0, domain.Internal("purge tokens", err)
	}
	s.record(ctx, domain.AuditEvent{Type: domain.AuditTokensPurged, Count: n})
	return n, nil
}
