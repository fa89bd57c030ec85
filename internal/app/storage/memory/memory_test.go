package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/breathtrack/backend/internal/app/domain/user"
	"github.com/breathtrack/backend/internal/app/storage"
)

func TestUpdateUser_RejectsTakenIdentifiers(t *testing.T) {
	ctx := context.Background()
	store := New()

	a, err := store.CreateUser(ctx, user.User{Email: "a@example.com", Username: "alpha"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := store.CreateUser(ctx, user.User{Email: "b@example.com", Username: "beta"}); err != nil {
		t.Fatalf("create b: %v", err)
	}

	a.Username = "Beta"
	if _, err := store.UpdateUser(ctx, a); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("taken username should conflict, got %v", err)
	}

	a.Username = "alpha"
	a.Email = "B@example.com"
	if _, err := store.UpdateUser(ctx, a); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("taken email should conflict, got %v", err)
	}

	// Keeping your own identifiers is never a conflict.
	a.Email = "a@example.com"
	a.FullName = "Alpha A"
	if _, err := store.UpdateUser(ctx, a); err != nil {
		t.Fatalf("self update: %v", err)
	}
}

func TestUpdateUser_UnknownID(t *testing.T) {
	store := New()

	_, err := store.UpdateUser(context.Background(), user.User{ID: "missing", Username: "ghost"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
