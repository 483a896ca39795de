package contracts

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", errors.New("429 Too Many Requests"), true},
		{"bad gateway", errors.New("502 Bad Gateway"), true},
		{"deadline", errors.New("context deadline exceeded"), true},
		{"unknown provider noise", errors.New("upstream hiccup"), true},
		{"revert", errors.New("execution reverted: lock active"), false},
		{"user rejection", errors.New("user rejected transaction"), false},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), false},
		{"nonce too low", errors.New("nonce too low"), false},
		// A terminal marker wins even when a transient one is also present.
		{"revert with timeout text", errors.New("execution reverted after timeout"), false},
		{"typed error", newError(ErrInvalidParameters, "bad input"), false},
		{"wrapped typed error", fmt.Errorf("outer: %w", newError(ErrTransactionFailed, "inner")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	err := fmt.Errorf("wrapped: %w", newError(ErrInsufficientStake, "too small"))
	if got := CodeOf(err); got != ErrInsufficientStake {
		t.Errorf("CodeOf = %q, want %q", got, ErrInsufficientStake)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %q, want empty", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := wrapError(ErrTransactionFailed, cause, "ctx")
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if err.Error() == "" || newError(ErrNoSigner, "msg").Error() == "" {
		t.Error("empty error strings")
	}
}
