// ABOUTME: Tests for auth context propagation helpers
// ABOUTME: Covers WithUser, UserFromContext, and MustUserFromContext

package auth

import (
	"context"
	"testing"
)

func TestWithUser_RoundTrip(t *testing.T) {
	ctx := WithUser(context.Background(), "user-7")

	if got := UserFromContext(ctx); got != "user-7" {
		t.Errorf("UserFromContext() = %q, want %q", got, "user-7")
	}
}

func TestUserFromContext_Empty(t *testing.T) {
	if got := UserFromContext(context.Background()); got != "" {
		t.Errorf("UserFromContext() = %q, want empty string", got)
	}
}

func TestMustUserFromContext_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustUserFromContext() should panic when no user is set")
		}
	}()

	MustUserFromContext(context.Background())
}

func TestMustUserFromContext_ReturnsUser(t *testing.T) {
	ctx := WithUser(context.Background(), "user-9")

	if got := MustUserFromContext(ctx); got != "user-9" {
		t.Errorf("MustUserFromContext() = %q, want %q", got, "user-9")
	}
}
