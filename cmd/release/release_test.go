// SPDX-License-Identifier: Apache-2.0
package release

import (
	"errors"
	"testing"

	"github.com/Work-Fort/Warehouse/pkg/build"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/Work-Fort/Warehouse/pkg/ui"
)

func TestRememberPassword(t *testing.T) {
	calls := 0
	ask := func(string) (string, error) {
		calls++
		return "secret", nil
	}
	keys := signing.Options{Password: ask, NewPassword: ask}
	rememberPassword(&keys)

	if pw, err := keys.NewPassword("Choose"); err != nil || pw != "secret" {
		t.Fatalf("NewPassword() = %q, %v", pw, err)
	}
	for i := 0; i < 3; i++ {
		pw, err := keys.Password("Unlock")
		if err != nil || pw != "secret" {
			t.Fatalf("call %d = %q, %v", i, pw, err)
		}
	}
	if calls != 1 {
		t.Errorf("prompted %d times, want 1", calls)
	}

	var empty signing.Options
	rememberPassword(&empty)
	if empty.Password != nil || empty.NewPassword != nil {
		t.Error("nil password funcs were replaced")
	}
}

func TestRememberPassword_RetriesAfterError(t *testing.T) {
	calls := 0
	keys := signing.Options{Password: func(string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("empty password")
		}
		return "secret", nil
	}}
	rememberPassword(&keys)

	if _, err := keys.Password("Unlock"); err == nil {
		t.Fatal("first call did not fail")
	}
	if pw, err := keys.Password("Unlock"); err != nil || pw != "secret" {
		t.Errorf("second call = %q, %v", pw, err)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		state build.State
		want  ui.Outcome
	}{
		{state: build.StateSucceeded, want: ui.OutcomeSucceeded},
		{state: build.StateSkipped, want: ui.OutcomeSkipped},
		{state: build.StateFailed, want: ui.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := outcome(tt.state); got != tt.want {
				t.Errorf("outcome(%s) = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}
