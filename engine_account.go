package tenantauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// CreateUser validates and stores a new account. The role decides the
// tenant rule: a tenant-scoped role needs a company, an unscoped role must
// not have one.
func (e *Engine) CreateUser(ctx context.Context, in NewUser) (*UserRecord, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	email := normalizeEmail(in.Email)
	fail := func(err error) (*UserRecord, error) {
		e.emitAudit(ctx, auditEventUserCreateFailure, false, "", in.CompanyID, "", err, func() map[string]string {
			return map[string]string{"email": email, "role_id": in.RoleID}
		})
		return nil, err
	}

	if email == "" || !strings.Contains(email, "@") || in.RoleID == "" {
		return fail(ErrInvalidUser)
	}
	if err := e.config.Password.Policy.Check(in.Password); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrWeakPassword, err))
	}

	role, err := e.store.GetRole(ctx, in.RoleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return fail(ErrInvalidUser)
		}
		return fail(unavailable(err))
	}
	if role.TenantScoped != (in.CompanyID != "") {
		return fail(ErrInvalidUser)
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return fail(fmt.Errorf("hash password: %w", err))
	}

	rec, err := e.store.CreateUser(ctx, CreateUserInput{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		RoleID:       in.RoleID,
		CompanyID:    in.CompanyID,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrInvalidUser) {
			return fail(err)
		}
		return fail(unavailable(err))
	}

	e.metricInc(MetricUserCreated)
	e.emitAudit(ctx, auditEventUserCreated, true, rec.UserID, rec.CompanyID, "", nil, func() map[string]string {
		return map[string]string{"role_id": rec.RoleID}
	})
	rec.PasswordHash = ""
	return &rec, nil
}

// DeleteUser removes the account and purges its sessions, OTP challenges
// and reset tokens.
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.store.DeleteUser(ctx, userID); err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			err = unavailable(err)
		}
		e.emitAudit(ctx, auditEventUserDeleted, false, userID, "", "", err, nil)
		return err
	}

	purgeErr := e.purgeUserState(ctx, userID)
	e.metricInc(MetricUserDeleted)
	if purgeErr != nil {
		e.warn("purge redis state of deleted user", purgeErr)
		err := unavailable(purgeErr)
		e.emitAudit(ctx, auditEventUserDeleted, true, userID, "", "", err, nil)
		return err
	}
	e.emitAudit(ctx, auditEventUserDeleted, true, userID, "", "", nil, nil)
	return nil
}

// SetUserActive enables or disables an account. Disabling revokes every
// session of the user and drops pending OTP challenges and reset tokens, so
// no outstanding refresh token can mint new access tokens.
func (e *Engine) SetUserActive(ctx context.Context, userID string, active bool) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	meta := func() map[string]string {
		return map[string]string{"active": strconv.FormatBool(active)}
	}
	if err := e.store.SetUserActive(ctx, userID, active); err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			err = unavailable(err)
		}
		e.emitAudit(ctx, auditEventUserStatusChanged, false, userID, "", "", err, meta)
		return err
	}
	if !active {
		if err := e.purgeUserState(ctx, userID); err != nil {
			e.warn("purge redis state of deactivated user", err)
			err = unavailable(err)
			e.emitAudit(ctx, auditEventUserStatusChanged, true, userID, "", "", err, meta)
			return err
		}
	}
	e.emitAudit(ctx, auditEventUserStatusChanged, true, userID, "", "", nil, meta)
	return nil
}

// purgeUserState revokes the sessions of userID and deletes its OTP
// challenges and reset tokens.
func (e *Engine) purgeUserState(ctx context.Context, userID string) error {
	var purgeErr error
	if n, err := e.sessions.InvalidateAllForUser(ctx, userID); err != nil {
		purgeErr = errors.Join(purgeErr, err)
	} else if n > 0 {
		e.metricInc(MetricSessionInvalidated)
	}
	if err := e.otps.DeleteForUser(ctx, userID, e.purposes...); err != nil {
		purgeErr = errors.Join(purgeErr, err)
	}
	if err := e.resets.DeleteForUser(ctx, userID); err != nil {
		purgeErr = errors.Join(purgeErr, err)
	}
	return purgeErr
}
