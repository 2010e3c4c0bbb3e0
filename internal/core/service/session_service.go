package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
	"github.com/sirpyerre/tenant-portal/internal/pkg/validation"
)

// fallbackDecoyHash is used only when hashing the random decoy secret fails.
const fallbackDecoyHash = "$argon2id$v=19$m=65536,t=3,p=4$c29tZXNhbHRzb21lc2FsdA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

const maxUserAgentLength = 255

// SessionConfig holds token lifetimes and an optional clock.
type SessionConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now overrides the clock; nil means time.Now. Share it with the TokenCodec.
	Now func() time.Time
}

// SessionDeps groups the collaborators of the session service.
type SessionDeps struct {
	Credentials ports.CredentialRepository
	Tokens      ports.RefreshTokenRepository
	Hasher      ports.PasswordHasher
	Codec       ports.TokenCodec
	// Audit may be nil.
	Audit ports.AuditSink
}

type sessionService struct {
	creds  ports.CredentialRepository
	tokens ports.RefreshTokenRepository
	hasher ports.PasswordHasher
	codec  ports.TokenCodec
	audit  ports.AuditSink
	decoy  string
	cfg    SessionConfig
	now    func() time.Time
	log    zerolog.Logger
}

// NewSessionService returns a SessionService implementation.
func NewSessionService(deps SessionDeps, cfg SessionConfig, log zerolog.Logger) ports.SessionService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	audit := deps.Audit
	if audit == nil {
		audit = discardAudit{}
	}
	// The decoy is verified when the email is unknown, so that branch pays the
	// same cost as a wrong password. Hashing it here keeps the configured parameters.
	decoy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		log.Warn().Err(err).Msg("decoy hash failed, using static fallback")
		decoy = fallbackDecoyHash
	}
	return &sessionService{
		creds:  deps.Credentials,
		tokens: deps.Tokens,
		hasher: deps.Hasher,
		codec:  deps.Codec,
		audit:  audit,
		decoy:  decoy,
		cfg:    cfg,
		now:    now,
		log:    log,
	}
}

type registration struct {
	Email      string `json:"email"       validate:"required,email,max=320"`
	Password   string `json:"password"    validate:"required,min=8,max=100,password"`
	FirstName  string `json:"first_name"  validate:"max=100"`
	LastName   string `json:"last_name"   validate:"max=100"`
	TenantName string `json:"tenant_name" validate:"required,min=2,max=100"`
}

type credentials struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates a tenant, its first user and an OWNER membership, then signs the user in.
func (s *sessionService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	req := registration{
		Email:      domain.NormalizeEmail(in.Email),
		Password:   in.Password,
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		TenantName: strings.TrimSpace(in.TenantName),
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	slug := domain.Slugify(req.TenantName)
	if slug == "" {
		return nil, domain.NewValidationError("tenant_name", "tenant_name must contain letters or digits")
	}

	if _, err := s.creds.FindUserByEmail(ctx, req.Email); err == nil {
		return nil, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.Internal("register: find user", err)
	}
	if _, err := s.creds.FindTenantBySlug(ctx, slug); err == nil {
		return nil, domain.ErrSlugTaken
	} else if !errors.Is(err, domain.ErrTenantNotFound) {
		return nil, domain.Internal("register: find tenant", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, domain.Internal("register: hash password", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tenant := &domain.Tenant{Slug: slug, Name: req.TenantName, CreatedAt: now}

	// The pre-checks above race with concurrent registrations; the store's
	// unique indexes are authoritative.
	membership, err := s.creds.CreateAccount(ctx, ports.NewAccount{User: user, Tenant: tenant})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, domain.Internal("register: create account", err)
	}

	result, err := s.signIn(ctx, user, tenant, membership.Role, in.Client)
	if err != nil {
		return nil, err
	}

	s.record(ctx, domain.AuditEvent{
		Type:      domain.AuditRegistered,
		UserID:    user.ID,
		TenantID:  tenant.ID,
		Email:     user.Email,
		IPAddress: in.Client.IPAddress,
		UserAgent: in.Client.UserAgent,
	})
	s.log.Info().Str("user_id", user.ID).Str("tenant", tenant.Slug).Msg("account registered")
	return result, nil
}

// Login authenticates credentials and opens a session in the selected tenant.
func (s *sessionService) Login(ctx context.Context, in ports.LoginInput) (*ports.AuthResult, error) {
	req := credentials{Email: domain.NormalizeEmail(in.Email), Password: in.Password}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.creds.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.Internal("login: find user", err)
		}
		s.hasher.Verify(s.decoy, req.Password)
		s.loginFailed(ctx, "", req.Email, in.Client, "unknown_email")
		return nil, domain.ErrInvalidCredentials
	}

	if !user.Active {
		s.loginFailed(ctx, user.ID, req.Email, in.Client, "deactivated")
		return nil, domain.ErrAccountDeactivated
	}
	if !s.hasher.Verify(user.PasswordHash, req.Password) {
		s.loginFailed(ctx, user.ID, req.Email, in.Client, "bad_password")
		return nil, domain.ErrInvalidCredentials
	}

	tenant, membership, err := s.resolveMembership(ctx, user.ID, in.TenantSlug)
	if err != nil {
		if errors.Is(err, domain.ErrNoTenantMembership) {
			s.loginFailed(ctx, user.ID, req.Email, in.Client, "no_membership")
		}
		return nil, err
	}

	result, err := s.signIn(ctx, user, tenant, membership.Role, in.Client)
	if err != nil {
		return nil, err
	}

	s.record(ctx, domain.AuditEvent{
		Type:      domain.AuditLoginSucceeded,
		UserID:    user.ID,
		TenantID:  tenant.ID,
		Email:     user.Email,
		IPAddress: in.Client.IPAddress,
		UserAgent: in.Client.UserAgent,
	})
	return result, nil
}

// Logout revokes the refresh record. Invalid or unknown tokens are ignored.
func (s *sessionService) Logout(ctx context.Context, refreshToken string, client ports.ClientMetadata) {
	if strings.TrimSpace(refreshToken) == "" {
		return
	}
	claims, err := s.codec.Verify(refreshToken, domain.TokenRefresh)
	if err != nil {
		s.log.Debug().Err(err).Msg("logout with unverifiable refresh token")
		return
	}

	revoked, err := s.tokens.Revoke(ctx, claims.TokenID, s.now().UTC())
	if err != nil {
		if !errors.Is(err, domain.ErrRefreshTokenNotFound) {
			s.log.Warn().Err(err).Str("token_id", claims.TokenID).Msg("logout: revoke failed")
		}
		return
	}
	if revoked {
		s.record(ctx, domain.AuditEvent{
			Type:      domain.AuditLogout,
			UserID:    claims.UserID,
			TenantID:  claims.TenantID,
			TokenID:   claims.TokenID,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
	}
}

// Rotate exchanges a refresh token for a new pair. The presented record is
// revoked with a compare-and-swap so exactly one concurrent caller wins.
func (s *sessionService) Rotate(ctx context.Context, refreshToken string, client ports.ClientMetadata) (*ports.TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken, domain.TokenRefresh)
	if err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}

	rec, err := s.tokens.Find(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, domain.Internal("rotate: find record", err)
	}
	if rec.UserID != claims.UserID || rec.TenantID != claims.TenantID {
		return nil, domain.ErrInvalidRefreshToken
	}

	now := s.now().UTC()
	switch rec.StateAt(now) {
	case domain.RefreshTokenRevoked:
		s.replayDetected(ctx, rec, client, "revoked record presented")
		return nil, domain.ErrInvalidRefreshToken
	case domain.RefreshTokenExpired:
		s.record(ctx, domain.AuditEvent{
			Type:      domain.AuditRefreshExpired,
			UserID:    rec.UserID,
			TenantID:  rec.TenantID,
			TokenID:   rec.ID,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
		return nil, domain.ErrExpiredRefreshToken
	}

	user, role, err := s.activeMember(ctx, rec.UserID, rec.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRefreshToken) {
			s.revokeQuietly(ctx, rec.ID, now)
		}
		return nil, err
	}

	won, err := s.tokens.Revoke(ctx, rec.ID, now)
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, domain.Internal("rotate: revoke record", err)
	}
	if !won {
		s.replayDetected(ctx, rec, client, "lost concurrent rotation")
		return nil, domain.ErrInvalidRefreshToken
	}

	pair, next, err := s.issuePair(ctx, identity(user, rec.TenantID, role), client)
	if err != nil {
		return nil, err
	}

	s.record(ctx, domain.AuditEvent{
		Type:      domain.AuditRefreshRotated,
		UserID:    rec.UserID,
		TenantID:  rec.TenantID,
		TokenID:   next,
		Reason:    "replaces " + rec.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	return pair, nil
}

// GetSession resolves an access token into the current identity. Deactivation
// and membership removal take effect immediately, not at token expiry.
func (s *sessionService) GetSession(ctx context.Context, accessToken string) *ports.Session {
	if accessToken == "" {
		return nil
	}
	claims, err := s.codec.Verify(accessToken, domain.TokenAccess)
	if err != nil {
		return nil
	}

	user, role, err := s.activeMember(ctx, claims.UserID, claims.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrInternal) {
			s.log.Error().Err(err).Str("user_id", claims.UserID).Msg("session lookup failed")
		}
		return nil
	}
	tenant, err := s.creds.FindTenantByID(ctx, claims.TenantID)
	if err != nil {
		if !errors.Is(err, domain.ErrTenantNotFound) {
			s.log.Error().Err(err).Str("tenant_id", claims.TenantID).Msg("session tenant lookup failed")
		}
		return nil
	}

	return &ports.Session{
		User: ports.SessionUser{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Role:      role,
		},
		Tenant: ports.SessionTenant{
			ID:   tenant.ID,
			Slug: tenant.Slug,
			Name: tenant.Name,
		},
		ExpiresAt: claims.ExpiresAt,
	}
}

// resolveMembership picks the tenant to sign in with. An explicit slug must match
// one of the user's memberships; otherwise the oldest membership wins.
func (s *sessionService) resolveMembership(ctx context.Context, userID, slug string) (*domain.Tenant, *domain.Membership, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug != "" {
		tenant, err := s.creds.FindTenantBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, domain.ErrTenantNotFound) {
				return nil, nil, domain.ErrNoTenantMembership
			}
			return nil, nil, domain.Internal("login: find tenant", err)
		}
		m, err := s.creds.FindMembership(ctx, userID, tenant.ID)
		if err != nil {
			if errors.Is(err, domain.ErrMembershipNotFound) {
				return nil, nil, domain.ErrNoTenantMembership
			}
			return nil, nil, domain.Internal("login: find membership", err)
		}
		return tenant, m, nil
	}

	memberships, err := s.creds.ListMemberships(ctx, userID)
	if err != nil {
		return nil, nil, domain.Internal("login: list memberships", err)
	}
	if len(memberships) == 0 {
		return nil, nil, domain.ErrNoTenantMembership
	}
	m := memberships[0]
	tenant, err := s.creds.FindTenantByID(ctx, m.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return nil, nil, domain.ErrNoTenantMembership
		}
		return nil, nil, domain.Internal("login: find tenant", err)
	}
	return tenant, &m, nil
}

// activeMember loads the user and their role in tenantID. A missing or inactive
// user and a missing membership all map to ErrInvalidRefreshToken.
func (s *sessionService) activeMember(ctx context.Context, userID, tenantID string) (*domain.User, domain.Role, error) {
	user, err := s.creds.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, "", domain.ErrInvalidRefreshToken
		}
		return nil, "", domain.Internal("find user", err)
	}
	if !user.Active {
		return nil, "", domain.ErrInvalidRefreshToken
	}
	m, err := s.creds.FindMembership(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrMembershipNotFound) {
			return nil, "", domain.ErrInvalidRefreshToken
		}
		return nil, "", domain.Internal("find membership", err)
	}
	return user, m.Role, nil
}

func (s *sessionService) signIn(ctx context.Context, user *domain.User, tenant *domain.Tenant, role domain.Role, client ports.ClientMetadata) (*ports.AuthResult, error) {
	pair, _, err := s.issuePair(ctx, identity(user, tenant.ID, role), client)
	if err != nil {
		return nil, err
	}
	return &ports.AuthResult{Tokens: *pair, User: *user, Tenant: *tenant, Role: role}, nil
}

// issuePair stores a new refresh record and signs both tokens. It returns the record ID.
func (s *sessionService) issuePair(ctx context.Context, base domain.TokenClaims, client ports.ClientMetadata) (*ports.TokenPair, string, error) {
	issued := s.now().UTC().Truncate(time.Second)
	rec, err := s.tokens.Create(ctx, ports.NewRefreshToken{
		UserID:    base.UserID,
		TenantID:  base.TenantID,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(s.cfg.RefreshTTL),
		Client:    sanitizeClient(client),
	})
	if err != nil {
		return nil, "", domain.Internal("issue: create refresh record", err)
	}

	access := base
	access.Kind = domain.TokenAccess
	accessToken, accessClaims, err := s.codec.Issue(access, s.cfg.AccessTTL)
	if err != nil {
		return nil, "", domain.Internal("issue: access token", err)
	}

	refresh := base
	refresh.Kind = domain.TokenRefresh
	refresh.TokenID = rec.ID
	refreshToken, refreshClaims, err := s.codec.Issue(refresh, s.cfg.RefreshTTL)
	if err != nil {
		return nil, "", domain.Internal("issue: refresh token", err)
	}

	return &ports.TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
	}, rec.ID, nil
}

func (s *sessionService) revokeQuietly(ctx context.Context, id string, at time.Time) {
	if _, err := s.tokens.Revoke(ctx, id, at); err != nil && !errors.Is(err, domain.ErrRefreshTokenNotFound) {
		s.log.Warn().Err(err).Str("token_id", id).Msg("revoke failed")
	}
}

func (s *sessionService) replayDetected(ctx context.Context, rec *domain.RefreshToken, client ports.ClientMetadata, reason string) {
	s.log.Warn().
		Str("token_id", rec.ID).
		Str("user_id", rec.UserID).
		Str("ip", client.IPAddress).
		Str("reason", reason).
		Msg("refresh token replay")
	s.record(ctx, domain.AuditEvent{
		Type:      domain.AuditRefreshReplayed,
		UserID:    rec.UserID,
		TenantID:  rec.TenantID,
		TokenID:   rec.ID,
		Reason:    reason,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
}

func (s *sessionService) loginFailed(ctx context.Context, userID, email string, client ports.ClientMetadata, reason string) {
	s.record(ctx, domain.AuditEvent{
		Type:      domain.AuditLoginFailed,
		UserID:    userID,
		Email:     email,
		Reason:    reason,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
}

func (s *sessionService) record(ctx context.Context, ev domain.AuditEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	s.audit.Record(ctx, ev)
}

func identity(user *domain.User, tenantID string, role domain.Role) domain.TokenClaims {
	return domain.TokenClaims{
		UserID:   user.ID,
		TenantID: tenantID,
		Email:    user.Email,
		Role:     role,
	}
}

func sanitizeClient(c ports.ClientMetadata) ports.ClientMetadata {
	ua := strings.TrimSpace(c.UserAgent)
	if len(ua) > maxUserAgentLength {
		ua = truncateRunes(ua, maxUserAgentLength)
	}
	return ports.ClientMetadata{UserAgent: ua, IPAddress: strings.TrimSpace(c.IPAddress)}
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}

type discardAudit struct{}

func (discardAudit) Record(context.Context, domain.AuditEvent) {}
