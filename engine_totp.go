package authkit

import "context"

// BeginTwoFactorSetup generates a TOTP secret and a fresh set of
// backup codes and stores them in the pending state. Nothing is
// enforced at login until ConfirmTwoFactorSetup proves the
// authenticator actually holds the secret. Calling again before
// confirmation discards the previous pending material.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, accountID string) (*TwoFactorSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	codes, hashes, err := generateBackupCodes(account.ID, e.config.TwoFactor.BackupCodes)
	if err != nil {
		return nil, err
	}

	if err := e.store.SaveTwoFactorSetup(ctx, account.ID, secret, hashes); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTwoFactorSetup, true, account.ID, account.Email, nil, nil)
	return &TwoFactorSetup{
		SecretBase32:    secretBase32,
		ProvisioningURI: e.totp.ProvisionURI(secretBase32, account.Email),
		BackupCodes:     codes,
	}, nil
}

// ConfirmTwoFactorSetup verifies one code from the authenticator
// against the pending secret and, on success, turns enforcement on.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, accountID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.clock()

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TwoFactorEnabled {
		return ErrTwoFactorEnabled
	}
	if !account.TwoFactorPending || len(account.TOTPSecret) == 0 {
		return ErrTwoFactorNotEnabled
	}

	ok, err := e.totp.VerifyCode(account.TOTPSecret, code, now)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.ID, account.Email, ErrTwoFactorCodeInvalid, nil)
		return ErrTwoFactorCodeInvalid
	}

	if err := e.store.EnableTwoFactor(ctx, account.ID); err != nil {
		return err
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, account.ID, account.Email, nil, nil)
	return nil
}

// DisableTwoFactor turns enforcement off and destroys the secret and
// all backup codes. It demands a fresh proof: the current password
// (when the account has one) plus a valid authenticator or backup
// code, so a hijacked session alone cannot strip the second factor.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID, currentPassword, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.clock()

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	if account.HasLocalPassword() {
		ok, err := e.hasher.Verify(currentPassword, account.PasswordHash)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidCredentials
		}
	}

	ok, _, err := e.checkSecondFactor(ctx, account, code, now)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.ID, account.Email, ErrTwoFactorCodeInvalid, nil)
		return ErrTwoFactorCodeInvalid
	}

	if err := e.store.DisableTwoFactor(ctx, account.ID); err != nil {
		return err
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, account.ID, account.Email, nil, nil)
	return nil
}

// RegenerateBackupCodes replaces every remaining backup code with a
// fresh set. Only an authenticator code is accepted as proof here;
// spending a backup code to mint more backup codes would defeat the
// accounting.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.clock()

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}

	ok, err := e.totp.VerifyCode(account.TOTPSecret, code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		return nil, ErrTwoFactorCodeInvalid
	}

	codes, hashes, err := generateBackupCodes(account.ID, e.config.TwoFactor.BackupCodes)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceBackupCodes(ctx, account.ID, hashes); err != nil {
		return nil, err
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesRegen, true, account.ID, account.Email, nil, nil)
	return codes, nil
}
