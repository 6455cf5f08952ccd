package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "github.com/fightinglucida/FastMP/pkg/errors"
)

func testConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, testConfig())

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return errs.New(errs.ErrorTypeNetwork, 0, "connection reset")
		}
		return nil
	}, testConfig())

	if err != nil {
		t.Errorf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errs.New(errs.ErrorTypeHandshake, 0, "login rejected")
	}, testConfig())

	if err == nil {
		t.Error("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error should not be retried, got %d calls", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errs.New(errs.ErrorTypeServerError, 502, "bad gateway")
	}, testConfig())

	if err == nil {
		t.Error("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig()
	cfg.Context = ctx
	cfg.Backoff = &ConstantBackoff{Delay: time.Second}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(func() error {
			calls++
			return errs.New(errs.ErrorTypeNetwork, 0, "timeout")
		}, cfg)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected cancellation error")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled in chain, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop after cancellation")
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(func() (string, error) {
		calls++
		if calls < 2 {
			return "", errs.New(errs.ErrorTypeRateLimit, 429, "throttled")
		}
		return "ok", nil
	}, testConfig())

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Errorf("expected result ok, got %q", result)
	}
}

func TestDefaultRetryIf(t *testing.T) {
	if DefaultRetryIf(nil) {
		t.Error("nil error should not be retried")
	}
	if DefaultRetryIf(context.Canceled) {
		t.Error("context.Canceled should not be retried")
	}
	if !DefaultRetryIf(errs.New(errs.ErrorTypeFingerprint, 200013, "rejected")) {
		t.Error("fingerprint rejection should be retried")
	}
	if DefaultRetryIf(errs.New(errs.ErrorTypeNotFound, 404, "no account")) {
		t.Error("not found should not be retried")
	}
	if !DefaultRetryIf(errors.New("plain error")) {
		t.Error("unknown errors default to retryable")
	}
}

func TestExponentialBackoffGrows(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	d1 := eb.NextDelay(1)
	d2 := eb.NextDelay(2)
	d3 := eb.NextDelay(3)

	if d1 != 100*time.Millisecond {
		t.Errorf("first delay = %v, want 100ms", d1)
	}
	if d2 != 200*time.Millisecond {
		t.Errorf("second delay = %v, want 200ms", d2)
	}
	if d3 != 400*time.Millisecond {
		t.Errorf("third delay = %v, want 400ms", d3)
	}
	if eb.NextDelay(10) != time.Second {
		t.Error("delay should cap at MaxDelay")
	}
	if eb.NextDelay(0) != 0 {
		t.Error("attempt 0 should produce zero delay")
	}
}

func TestLinearBackoff(t *testing.T) {
	lb := &LinearBackoff{
		BaseDelay: 100 * time.Millisecond,
		Increment: 50 * time.Millisecond,
		MaxDelay:  250 * time.Millisecond,
	}

	if lb.NextDelay(1) != 100*time.Millisecond {
		t.Error("first delay should be base delay")
	}
	if lb.NextDelay(2) != 150*time.Millisecond {
		t.Error("second delay should add one increment")
	}
	if lb.NextDelay(10) != 250*time.Millisecond {
		t.Error("delay should cap at MaxDelay")
	}
}
