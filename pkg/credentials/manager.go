package credentials

import (
	"context"
	stderrors "errors"

	"github.com/fightinglucida/FastMP/pkg/logger"
	"github.com/fightinglucida/FastMP/pkg/secrets"
)

// Manager joins the durable records with the secret store: records carry
// the bookkeeping, secrets carry the cookie material. It is the sink the
// login machine hands freshly harvested credentials to.
type Manager struct {
	repo    *Repository
	secrets secrets.Store
	logger  logger.Logger
}

// NewManager wires the credential manager.
func NewManager(repo *Repository, sec secrets.Store, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{repo: repo, secrets: sec, logger: log}
}

// Repository exposes the underlying record store.
func (m *Manager) Repository() *Repository { return m.repo }

// Materialize persists a harvested credential and makes it the owner's
// current one. The cookie material goes to the secret store first so a
// visible record never lacks its secret.
func (m *Manager) Materialize(ctx context.Context, cred Credential, cookieHeader string) (View, error) {
	if err := m.secrets.Put(cred.Token, cookieHeader); err != nil {
		return View{}, err
	}

	if err := m.repo.Save(ctx, &cred); err != nil {
		return View{}, err
	}
	if err := m.repo.SetCurrent(ctx, cred.Owner, cred.Token); err != nil {
		return View{}, err
	}
	cred.Current = true

	m.logger.InfoWithFields("credential materialized", map[string]interface{}{
		"token":        cred.Token,
		"owner":        cred.Owner,
		"account_name": cred.AccountName,
		"expires_at":   cred.ExpiresAt,
	})

	view := ViewOf(cred)
	view.CookieMaterial = cookieHeader
	return view, nil
}

// CookieMaterial resolves the stored cookie header for a token.
func (m *Manager) CookieMaterial(token string) (string, error) {
	return m.secrets.Get(token)
}

// View returns the full projection for one token, cookie material included.
func (m *Manager) View(ctx context.Context, token string) (View, error) {
	cred, err := m.repo.Get(ctx, token)
	if err != nil {
		return View{}, err
	}
	view := ViewOf(*cred)
	if material, err := m.secrets.Get(token); err == nil {
		view.CookieMaterial = material
	}
	return view, nil
}

// List returns the owner's records without cookie material.
func (m *Manager) List(ctx context.Context, owner string) ([]View, error) {
	creds, err := m.repo.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(creds))
	for _, cred := range creds {
		views = append(views, ViewOf(cred))
	}
	return views, nil
}

// Current returns the owner's current credential with its cookie material.
func (m *Manager) Current(ctx context.Context, owner string) (View, error) {
	cred, err := m.repo.Current(ctx, owner)
	if err != nil {
		return View{}, err
	}
	view := ViewOf(*cred)
	if material, err := m.secrets.Get(cred.Token); err == nil {
		view.CookieMaterial = material
	}
	return view, nil
}

// SetCurrent switches the owner's current credential.
func (m *Manager) SetCurrent(ctx context.Context, owner, token string) error {
	return m.repo.SetCurrent(ctx, owner, token)
}

// Revoke deletes the record and its secret. A secret already gone is not
// an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if err := m.repo.Delete(ctx, token); err != nil {
		return err
	}
	if err := m.secrets.Delete(token); err != nil && !stderrors.Is(err, secrets.ErrNotFound) {
		m.logger.WarnWithFields("failed to delete secret for revoked credential", map[string]interface{}{
			"token": token,
			"error": err.Error(),
		})
	}
	m.logger.InfoWithFields("credential revoked", map[string]interface{}{
		"token": token,
	})
	return nil
}
