package authkit

import "context"

// UpdateProfile applies a partial update to the account's
// non-credential fields.
func (e *Engine) UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate) (Profile, error) {
	if e == nil {
		return Profile{}, ErrEngineNotReady
	}

	if err := e.store.UpdateProfile(ctx, accountID, update); err != nil {
		return Profile{}, err
	}
	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}

	e.emitAudit(ctx, auditEventProfileUpdated, true, account.ID, account.Email, nil, nil)
	return account.Profile(), nil
}

// ExportAccountData assembles everything the system holds about the
// account into one snapshot: the public profile plus the user's
// content from the resource collaborator. Credential material is
// excluded by construction since the snapshot is built from the
// Profile projection.
func (e *Engine) ExportAccountData(ctx context.Context, accountID string) (*ExportSnapshot, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var resources []Resource
	if e.resources != nil {
		resources, err = e.resources.ListByAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
	}

	e.metricInc(MetricAccountExported)
	e.emitAudit(ctx, auditEventAccountExported, true, account.ID, account.Email, nil, nil)
	return &ExportSnapshot{
		ExportedAt: e.clock().UTC(),
		Account:    account.Profile(),
		Resources:  resources,
	}, nil
}

// DeleteAccount removes the account and its content. The current
// password re-proves intent for password-holding accounts; content is
// deleted before the identity record so a failure partway leaves a
// deletable account rather than orphaned content.
func (e *Engine) DeleteAccount(ctx context.Context, accountID, currentPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return err
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

	if e.resources != nil {
		if err := e.resources.DeleteAllByAccount(ctx, accountID); err != nil {
			return err
		}
	}
	if err := e.store.Delete(ctx, accountID); err != nil {
		return err
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, account.ID, account.Email, nil, nil)
	return nil
}
