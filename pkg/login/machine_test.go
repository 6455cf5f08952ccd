package login

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fightinglucida/FastMP/pkg/config"
	"github.com/fightinglucida/FastMP/pkg/credentials"
	errs "github.com/fightinglucida/FastMP/pkg/errors"
	"github.com/fightinglucida/FastMP/pkg/logger"
	"github.com/fightinglucida/FastMP/pkg/wechat"
)

func noopLogger() logger.Logger { return logger.GetLogger() }

// fakeProvider scripts one handshake's provider responses.
type fakeProvider struct {
	qr          []byte
	statuses    []int
	askErr      error
	completeErr error
	token       string
	cookies     string
	accountName string
	fingerprint string
}

func (f *fakeProvider) OpenLoginSession(ctx context.Context) error { return nil }

func (f *fakeProvider) FetchQRCode(ctx context.Context) ([]byte, error) {
	return f.qr, nil
}

func (f *fakeProvider) AskLoginStatus(ctx context.Context) (int, error) {
	if f.askErr != nil {
		return 0, f.askErr
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

func (f *fakeProvider) CompleteLogin(ctx context.Context) (string, string, error) {
	if f.completeErr != nil {
		return "", "", f.completeErr
	}
	return f.token, f.cookies, nil
}

func (f *fakeProvider) FetchAccountName(ctx context.Context, token string) (string, error) {
	return f.accountName, nil
}

func (f *fakeProvider) Fingerprint() string { return f.fingerprint }

// fakeSink records the credential handed to it.
type fakeSink struct {
	cred    credentials.Credential
	cookies string
	err     error
}

func (f *fakeSink) Materialize(ctx context.Context, cred credentials.Credential, cookieHeader string) (credentials.View, error) {
	if f.err != nil {
		return credentials.View{}, f.err
	}
	f.cred = cred
	f.cookies = cookieHeader
	view := credentials.ViewOf(cred)
	view.CookieMaterial = cookieHeader
	return view, nil
}

// steadyProvider answers every status check with the same code, slowly
// enough for overlapping polls to interleave. Safe for concurrent use.
type steadyProvider struct {
	fakeProvider
	status int
}

func (p *steadyProvider) AskLoginStatus(ctx context.Context) (int, error) {
	time.Sleep(time.Millisecond)
	return p.status, nil
}

func newTestMachine(provider ProviderClient, sink *fakeSink) (*Machine, Store) {
	store := NewMemoryStore(5 * time.Minute)
	m := &Machine{
		store:     store,
		sink:      sink,
		newClient: func() ProviderClient { return provider },
		validity:  88 * time.Hour,
	}
	m.logger = noopLogger()
	return m, store
}

func TestStartIssuesSession(t *testing.T) {
	provider := &fakeProvider{qr: []byte("png-bytes")}
	m, store := newTestMachine(provider, &fakeSink{})

	result, err := m.Start(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, result.LoginKey)
	assert.Equal(t, []byte("png-bytes"), result.QRImage)

	session, ok := store.Get(result.LoginKey)
	require.True(t, ok)
	assert.Equal(t, StateIssued, session.State)
	assert.Equal(t, "alice", session.Owner)
}

func TestPollProgression(t *testing.T) {
	provider := &fakeProvider{
		qr:       []byte("png"),
		statuses: []int{wechat.StatusNotScanned, wechat.StatusScanned},
	}
	m, _ := newTestMachine(provider, &fakeSink{})

	start, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	result, err := m.Poll(context.Background(), start.LoginKey)
	require.NoError(t, err)
	assert.Equal(t, StateIssued, result.State)
	assert.Equal(t, []byte("png"), result.QRImage)

	result, err = m.Poll(context.Background(), start.LoginKey)
	require.NoError(t, err)
	assert.Equal(t, StateScanned, result.State)
}

func TestPollConfirmedEstablishesCredential(t *testing.T) {
	provider := &fakeProvider{
		qr:          []byte("png"),
		statuses:    []int{wechat.StatusConfirmed},
		token:       "998877",
		cookies:     "slave_sid=abc; data_ticket=xyz; ",
		accountName: "gopher weekly",
		fingerprint: "ff00ff00ff00ff00ff00ff00ff00ff00",
	}
	sink := &fakeSink{}
	m, store := newTestMachine(provider, sink)

	start, err := m.Start(context.Background(), "alice")
	require.NoError(t, err)

	result, err := m.Poll(context.Background(), start.LoginKey)
	require.NoError(t, err)
	assert.Equal(t, StateEstablished, result.State)

	require.NotNil(t, result.Credential)
	assert.Equal(t, "998877", result.Credential.Token)
	assert.Equal(t, "slave_sid=abc; data_ticket=xyz; ", result.Credential.CookieMaterial)

	// The sink saw the full harvested record.
	assert.Equal(t, "alice", sink.cred.Owner)
	assert.Equal(t, "gopher weekly", sink.cred.AccountName)
	assert.Equal(t, provider.fingerprint, sink.cred.Fingerprint)
	assert.WithinDuration(t, time.Now().Add(88*time.Hour), sink.cred.ExpiresAt, time.Minute)

	// The session is consumed: further polls see an invalid key.
	_, ok := store.Get(start.LoginKey)
	assert.False(t, ok)

	again, err := m.Poll(context.Background(), start.LoginKey)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, again.State)
	assert.Equal(t, "expired or invalid key", again.Reason)
}

func TestNewMachineAppliesConfiguredUserAgent(t *testing.T) {
	agents := make(chan string, 8)
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case agents <- r.Header.Get("User-Agent"):
		default:
		}
		w.Write([]byte(`{"base_resp":{"ret":0}}`))
	}))
	t.Cleanup(provider.Close)

	cfg := config.DefaultConfig()
	cfg.Provider.BaseURL = provider.URL
	cfg.Provider.UserAgent = "fastmp-tests/1.0"

	m := NewMachine(NewMemoryStore(time.Minute), &fakeSink{}, cfg, nil)
	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	close(agents)
	for ua := range agents {
		assert.Equal(t, "fastmp-tests/1.0", ua)
	}
}

func TestPollConcurrentSameKey(t *testing.T) {
	provider := &steadyProvider{
		fakeProvider: fakeProvider{qr: []byte("png")},
		status:       wechat.StatusScanned,
	}
	m, store := newTestMachine(provider, &fakeSink{})

	start, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	// Overlapping polls of one key are wasteful but must stay safe.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				result, err := m.Poll(context.Background(), start.LoginKey)
				assert.NoError(t, err)
				assert.Equal(t, StateScanned, result.State)
			}
		}()
	}
	wg.Wait()

	session, ok := store.Get(start.LoginKey)
	require.True(t, ok)
	assert.Equal(t, StateScanned, session.State)
}

func TestPollUnknownKey(t *testing.T) {
	m, _ := newTestMachine(&fakeProvider{}, &fakeSink{})

	result, err := m.Poll(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, "expired or invalid key", result.Reason)
}

func TestPollTransientErrorKeepsSession(t *testing.T) {
	provider := &fakeProvider{
		qr:     []byte("png"),
		askErr: errs.New(errs.ErrorTypeNetwork, 0, "connection reset"),
	}
	m, store := newTestMachine(provider, &fakeSink{})

	start, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	result, err := m.Poll(context.Background(), start.LoginKey)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)

	// A transient failure must not consume the session.
	_, ok := store.Get(start.LoginKey)
	assert.True(t, ok)

	// Once the provider recovers, polling proceeds normally.
	provider.askErr = nil
	provider.statuses = []int{wechat.StatusScanned}
	result, err = m.Poll(context.Background(), start.LoginKey)
	require.NoError(t, err)
	assert.Equal(t, StateScanned, result.State)
}

func TestPollDefinitiveFailureDeletesSession(t *testing.T) {
	provider := &fakeProvider{
		qr:     []byte("png"),
		askErr: errs.New(errs.ErrorTypeHandshake, 0, "login rejected"),
	}
	m, store := newTestMachine(provider, &fakeSink{})

	start, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	result, err := m.Poll(context.Background(), start.LoginKey)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)

	_, ok := store.Get(start.LoginKey)
	assert.False(t, ok)
}

func TestPollAfterTTLExpiry(t *testing.T) {
	store, now := newClockedStore(5 * time.Minute)
	provider := &fakeProvider{qr: []byte("png")}
	m := &Machine{
		store:     store,
		sink:      &fakeSink{},
		newClient: func() ProviderClient { return provider },
		validity:  88 * time.Hour,
		logger:    noopLogger(),
	}

	start, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	*now = now.Add(5*time.Minute + time.Second)

	result, err := m.Poll(context.Background(), start.LoginKey)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, "expired or invalid key", result.Reason)
}
