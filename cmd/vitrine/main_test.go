package main

import (
	"errors"
	"fmt"
	"testing"

	"vitrine/internal/services"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "explicit code",
			err:  &exitCodeError{code: 2, err: errors.New("credential failure")},
			want: 2,
		},
		{
			name: "wrapped explicit code",
			err:  fmt.Errorf("run: %w", &exitCodeError{code: 1, err: errors.New("publish failed")}),
			want: 1,
		},
		{
			name: "configuration error",
			err:  services.Wrap(services.ErrConfiguration, "cli", "config", "load configuration", errors.New("parse")),
			want: 2,
		},
		{
			name: "auth error",
			err:  services.Wrap(services.ErrAuth, "credentials", "refresh", "refresh rejected", nil),
			want: 2,
		},
		{
			name: "anything else",
			err:  errors.New("boom"),
			want: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCodeFor(tc.err); got != tc.want {
				t.Fatalf("exitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestExitCodeErrorMessage(t *testing.T) {
	withCause := &exitCodeError{code: 1, err: errors.New("publish failed")}
	if withCause.Error() != "publish failed" {
		t.Fatalf("unexpected message: %q", withCause.Error())
	}
	if !errors.Is(withCause, withCause.err) {
		t.Fatal("exitCodeError should unwrap to its cause")
	}

	bare := &exitCodeError{code: 3}
	if bare.Error() != "exit code 3" {
		t.Fatalf("unexpected bare message: %q", bare.Error())
	}
}
