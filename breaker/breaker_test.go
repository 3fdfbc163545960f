package breaker

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("service down")
var errCaller = errors.New("bad input")

func newTestRegistry(timeout time.Duration) *Registry {
	return NewRegistry(Settings{
		OpenTimeout: timeout,
		Ignore:      func(err error) bool { return errors.Is(err, errCaller) },
	}, nil)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	r := newTestRegistry(time.Minute)

	for i := 0; i < DefaultFailureThreshold; i++ {
		if err := r.Execute(Crawler, func() error { return errDown }); !errors.Is(err, errDown) {
			t.Fatalf("attempt %d: expected service error, got %v", i, err)
		}
	}
	if state := r.State(Crawler); state != "open" {
		t.Fatalf("expected open, got %s", state)
	}

	called := false
	err := r.Execute(Crawler, func() error { called = true; return nil })
	if !IsOpen(err) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("open breaker must not call the service")
	}

	if state := r.State(OpenAI); state != "closed" {
		t.Errorf("breakers should be independent, openai is %s", state)
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	r := newTestRegistry(time.Minute)

	r.Execute(Crawler, func() error { return errDown })
	r.Execute(Crawler, func() error { return errDown })
	r.Execute(Crawler, func() error { return nil })
	r.Execute(Crawler, func() error { return errDown })
	r.Execute(Crawler, func() error { return errDown })

	if state := r.State(Crawler); state != "closed" {
		t.Errorf("failures were not consecutive, got %s", state)
	}
}

func TestBreakerIgnoresCallerErrors(t *testing.T) {
	r := newTestRegistry(time.Minute)

	for i := 0; i < 10; i++ {
		if err := r.Execute(Crawler, func() error { return errCaller }); !errors.Is(err, errCaller) {
			t.Fatalf("caller error should pass through, got %v", err)
		}
	}
	if state := r.State(Crawler); state != "closed" {
		t.Errorf("caller errors must not open the breaker, got %s", state)
	}
}

func TestBreakerCallerErrorsKeepFailureStreak(t *testing.T) {
	r := newTestRegistry(time.Minute)

	r.Execute(Crawler, func() error { return errDown })
	r.Execute(Crawler, func() error { return errDown })
	r.Execute(Crawler, func() error { return errCaller })
	r.Execute(Crawler, func() error { return errDown })

	if state := r.State(Crawler); state != "open" {
		t.Errorf("three service failures around a caller error should open the breaker, got %s", state)
	}
}

func TestBreakerHalfOpenReleasedByCallerError(t *testing.T) {
	r := newTestRegistry(20 * time.Millisecond)

	for i := 0; i < DefaultFailureThreshold; i++ {
		r.Execute(Crawler, func() error { return errDown })
	}
	time.Sleep(40 * time.Millisecond)

	if err := r.Execute(Crawler, func() error { return errCaller }); !errors.Is(err, errCaller) {
		t.Fatalf("trial request should run, got %v", err)
	}
	if err := r.Execute(Crawler, func() error { return nil }); err != nil {
		t.Errorf("trial slot should have been released, got %v", err)
	}
}

func TestBreakerHalfOpen(t *testing.T) {
	r := newTestRegistry(20 * time.Millisecond)

	for i := 0; i < DefaultFailureThreshold; i++ {
		r.Execute(OpenAI, func() error { return errDown })
	}
	time.Sleep(40 * time.Millisecond)

	if state := r.State(OpenAI); state != "half-open" {
		t.Fatalf("expected half-open after timeout, got %s", state)
	}
	if err := r.Execute(OpenAI, func() error { return nil }); err != nil {
		t.Fatalf("trial request should be allowed, got %v", err)
	}
	if state := r.State(OpenAI); state != "closed" {
		t.Errorf("successful trial request should close the breaker, got %s", state)
	}

	states := r.States()
	if states[OpenAI] != "closed" {
		t.Errorf("unexpected states %v", states)
	}
}
