package login

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fightinglucida/FastMP/pkg/config"
	"github.com/fightinglucida/FastMP/pkg/credentials"
	errs "github.com/fightinglucida/FastMP/pkg/errors"
	"github.com/fightinglucida/FastMP/pkg/logger"
	"github.com/fightinglucida/FastMP/pkg/wechat"
)

// ProviderClient is the slice of the provider API one handshake needs.
// *wechat.Client satisfies it; tests substitute a scripted fake.
type ProviderClient interface {
	OpenLoginSession(ctx context.Context) error
	FetchQRCode(ctx context.Context) ([]byte, error)
	AskLoginStatus(ctx context.Context) (int, error)
	CompleteLogin(ctx context.Context) (token string, cookieHeader string, err error)
	FetchAccountName(ctx context.Context, token string) (string, error)
	Fingerprint() string
}

// CredentialSink persists a harvested credential together with its cookie
// material and returns the public view handed back to the poller.
type CredentialSink interface {
	Materialize(ctx context.Context, cred credentials.Credential, cookieHeader string) (credentials.View, error)
}

// StartResult is the immediate response to opening a handshake.
type StartResult struct {
	LoginKey string
	QRImage  []byte
}

// PollResult is one observation of a handshake's progress. Credential is
// set only when State is ESTABLISHED.
type PollResult struct {
	State      State
	QRImage    []byte
	Credential *credentials.View
	Reason     string
}

// Machine drives QR handshakes from issuance to a stored credential. All
// session state lives in the injected Store; the machine itself holds no
// per-handshake state and is safe for concurrent use.
type Machine struct {
	store     Store
	sink      CredentialSink
	newClient func() ProviderClient
	validity  time.Duration
	logger    logger.Logger
}

// NewMachine wires a login machine against a session store and a
// credential sink.
func NewMachine(store Store, sink CredentialSink, cfg *config.Config, log logger.Logger) *Machine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Machine{
		store: store,
		sink:  sink,
		newClient: func() ProviderClient {
			client := wechat.NewClient(cfg.Provider.BaseURL, cfg.Provider.RequestTimeout, log)
			if cfg.Provider.UserAgent != "" {
				client.SetHeader("User-Agent", cfg.Provider.UserAgent)
			}
			return client
		},
		validity: cfg.Quota.CredentialValidity,
		logger:   log,
	}
}

// Start opens a provider handshake, fetches its QR image, and registers a
// new session in state ISSUED. It returns immediately; callers poll for
// progress.
func (m *Machine) Start(ctx context.Context, owner string) (*StartResult, error) {
	client := m.newClient()

	if err := client.OpenLoginSession(ctx); err != nil {
		m.logger.ErrorWithFields("failed to open login handshake", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	qr, err := client.FetchQRCode(ctx)
	if err != nil {
		m.logger.ErrorWithFields("failed to fetch QR code", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	key := uuid.NewString()
	m.store.Put(key, &Session{
		Key:       key,
		Client:    client,
		QRImage:   qr,
		State:     StateIssued,
		Owner:     owner,
		CreatedAt: time.Now(),
	})

	m.logger.InfoWithFields("login handshake started", map[string]interface{}{
		"login_key": key,
	})
	return &StartResult{LoginKey: key, QRImage: qr}, nil
}

// Poll looks up the session and performs one provider status check. A
// confirmed scan drives the remaining handshake synchronously: token
// exchange, cookie capture, credential materialization, and session
// deletion. Missing or expired keys report FAILED with an explanatory
// reason rather than an error.
func (m *Machine) Poll(ctx context.Context, key string) (*PollResult, error) {
	session, ok := m.store.Get(key)
	if !ok {
		return &PollResult{State: StateFailed, Reason: "expired or invalid key"}, nil
	}

	code, err := session.Client.AskLoginStatus(ctx)
	if err != nil {
		return m.failPoll(key, err), nil
	}

	state := stateFromVendorCode(code)
	switch state {
	case StateIssued, StateScanned:
		session.State = state
		m.store.Put(key, session)
		return &PollResult{State: state, QRImage: session.QRImage}, nil

	case StateConfirmed:
		return m.establish(ctx, key, session)

	default:
		// Vendor reported a code outside the handshake protocol.
		m.store.Delete(key)
		m.logger.WarnWithFields("handshake rejected by provider", map[string]interface{}{
			"login_key":   key,
			"vendor_code": code,
		})
		return &PollResult{State: StateFailed, Reason: "provider rejected the handshake"}, nil
	}
}

// establish runs the post-confirmation steps and consumes the session.
func (m *Machine) establish(ctx context.Context, key string, session *Session) (*PollResult, error) {
	token, cookieHeader, err := session.Client.CompleteLogin(ctx)
	if err != nil {
		return m.failPoll(key, err), nil
	}

	// Best effort: the handshake succeeds even without a display name.
	accountName, err := session.Client.FetchAccountName(ctx, token)
	if err != nil {
		m.logger.WarnWithFields("could not fetch account name", map[string]interface{}{
			"login_key": key,
			"error":     err.Error(),
		})
		accountName = ""
	}

	now := time.Now()
	view, err := m.sink.Materialize(ctx, credentials.Credential{
		Token:         token,
		Fingerprint:   session.Client.Fingerprint(),
		AccountName:   accountName,
		Owner:         session.Owner,
		RequestCount:  0,
		WindowResetAt: now.Add(time.Hour),
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.validity),
	}, cookieHeader)
	if err != nil {
		m.logger.ErrorWithFields("failed to persist credential", map[string]interface{}{
			"login_key": key,
			"error":     err.Error(),
		})
		m.store.Delete(key)
		return nil, err
	}

	m.store.Delete(key)
	m.logger.InfoWithFields("login handshake established", map[string]interface{}{
		"login_key":    key,
		"token":        token,
		"account_name": accountName,
	})
	return &PollResult{State: StateEstablished, Credential: &view}, nil
}

// failPoll reports a FAILED attempt. Transient provider errors keep the
// session alive so the caller's next poll can succeed; definitive failures
// consume it.
func (m *Machine) failPoll(key string, err error) *PollResult {
	if errs.IsTransient(err) {
		m.logger.WarnWithFields("transient error during poll", map[string]interface{}{
			"login_key": key,
			"error":     err.Error(),
		})
	} else {
		m.store.Delete(key)
		m.logger.WarnWithFields("handshake failed", map[string]interface{}{
			"login_key": key,
			"error":     err.Error(),
		})
	}
	return &PollResult{State: StateFailed, Reason: err.Error()}
}
