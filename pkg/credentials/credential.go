package credentials

import "time"

// Credential is one harvested provider session. The durable record holds
// everything except the cookie material, which lives in the secret store
// keyed by token.
type Credential struct {
	Token         string    `db:"token"`
	Fingerprint   string    `db:"fingerprint"`
	AccountName   string    `db:"account_name"`
	Owner         string    `db:"owner"`
	Current       bool      `db:"is_current"`
	RequestCount  int       `db:"request_count"`
	WindowResetAt time.Time `db:"window_reset_at"`
	CreatedAt     time.Time `db:"created_at"`
	ExpiresAt     time.Time `db:"expires_at"`
}

// Expired reports whether the credential is past its provider-side validity.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// UnderQuota reports whether the credential can absorb another request in
// the current window. A lapsed window counts as empty.
func (c *Credential) UnderQuota(now time.Time, hourlyLimit int) bool {
	if !now.Before(c.WindowResetAt) {
		return true
	}
	return c.RequestCount < hourlyLimit
}

// View is the public projection of a credential, including the cookie
// material resolved from the secret store.
type View struct {
	Token          string    `json:"token"`
	AccountName    string    `json:"account_name,omitempty"`
	CookieMaterial string    `json:"cookie_material,omitempty"`
	Fingerprint    string    `json:"fingerprint,omitempty"`
	Current        bool      `json:"current"`
	RequestCount   int       `json:"request_count"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// ViewOf projects a credential. Cookie material is attached separately by
// whoever resolved it.
func ViewOf(c Credential) View {
	return View{
		Token:        c.Token,
		AccountName:  c.AccountName,
		Fingerprint:  c.Fingerprint,
		Current:      c.Current,
		RequestCount: c.RequestCount,
		ExpiresAt:    c.ExpiresAt,
		CreatedAt:    c.CreatedAt,
	}
}
