package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type statusErr struct {
	code int
}

func (e statusErr) Error() string   { return fmt.Sprintf("api status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

func TestOverloaded(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 503", statusErr{code: 503}, true},
		{"status 400", errors.New("api status 400: bad request"), false},
		{"overloaded message", errors.New("the model is overloaded, try again"), true},
		{"503 in message", errors.New("gemini API 503 Service Unavailable: busy"), true},
		{"unavailable message", errors.New("code UNAVAILABLE"), true},
		{"quota", errors.New("RESOURCE_EXHAUSTED: quota exceeded"), false},
		{"wrapped status", fmt.Errorf("render view: %w", statusErr{code: 503}), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overloaded(tc.err); got != tc.want {
				t.Errorf("Overloaded(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDoRetriesOverloadThenSucceeds(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: time.Millisecond}

	attempts := 0
	got, err := Do(context.Background(), p, func() (string, error) {
		attempts++
		if attempts <= 2 {
			return "", statusErr{code: 503}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" {
		t.Errorf("value = %q, want ok", got)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (two overload failures then success)", attempts)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	p := Policy{MaxRetries: 2, BaseDelay: time.Millisecond}

	attempts := 0
	_, err := Do(context.Background(), p, func() (string, error) {
		attempts++
		return "", errors.New("overloaded")
	})
	if err == nil {
		t.Fatal("expected error after budget exhausted")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (first try plus two retries)", attempts)
	}
}

func TestDoZeroRetriesMakesOneAttempt(t *testing.T) {
	p := Policy{MaxRetries: 0, BaseDelay: time.Millisecond}

	attempts := 0
	_, err := Do(context.Background(), p, func() (string, error) {
		attempts++
		return "", errors.New("overloaded")
	})
	if err == nil {
		t.Fatal("expected the overload error to propagate")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (retries disabled)", attempts)
	}
}

func TestDoDoesNotRetryNonOverload(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: time.Millisecond}

	permanent := errors.New("API key not valid")
	attempts := 0
	_, err := Do(context.Background(), p, func() (int, error) {
		attempts++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the original error unchanged", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestExponentialDelaysDouble(t *testing.T) {
	b := newExponential(Policy{MaxRetries: 3, BaseDelay: 2 * time.Second})

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Errorf("delay %d = %v, want %v", i+1, got, w)
		}
	}
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := Do(ctx, Policy{MaxRetries: 3, BaseDelay: time.Second}, func() (int, error) {
		attempts++
		return 0, errors.New("overloaded")
	})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
