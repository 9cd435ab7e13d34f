package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserRepositoryCreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "alice", "pw")

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("Username = %q, want alice", got.Username)
	}
	if !got.IsActive {
		t.Error("IsActive = false, want true")
	}
	if got.Roles == nil {
		t.Error("Roles should be an empty slice, not nil")
	}

	byName, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if byName.ID != user.ID {
		t.Errorf("ID = %q, want %q", byName.ID, user.ID)
	}

	if _, err := repo.GetByID(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepositoryDuplicateUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	createTestUser(t, repo, "alice", "pw")

	dup := &User{Username: "alice", PasswordHash: "x", IsActive: true}
	if err := repo.Create(context.Background(), dup); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("Create(duplicate) error = %v, want ErrUsernameExists", err)
	}
}

func TestUserRepositoryUpdate(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "alice", "pw")
	user.DisplayName = "Alice A."
	user.Email = "alice@example.com"
	user.IsActive = false

	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.DisplayName != "Alice A." || got.Email != "alice@example.com" {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.IsActive {
		t.Error("IsActive = true, want false")
	}

	missing := &User{ID: "usr-missing"}
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepositoryUpdatePassword(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "alice", "old")

	newHash, err := HashPassword("new")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := repo.UpdatePassword(ctx, user.ID, newHash); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	ok, err := VerifyPassword("new", got.PasswordHash)
	if err != nil || !ok {
		t.Errorf("new password not verifiable: ok=%v err=%v", ok, err)
	}
}

func TestUserRepositoryDelete(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "alice", "pw")

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID(deleted) error = %v, want ErrUserNotFound", err)
	}
	if err := repo.Delete(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Delete(again) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepositoryRoleLoading(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	rbac := NewRBACRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "alice", "pw")
	role := createTestRole(t, rbac, "Operator", false,
		Permission{Name: "list devices", Method: "GET", Path: "/devices"},
		Permission{Name: "command devices", Method: "POST", Path: "/devices"},
	)

	if err := repo.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole() error = %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(got.Roles) != 1 {
		t.Fatalf("roles = %d, want 1", len(got.Roles))
	}
	if got.Roles[0].Name != "Operator" {
		t.Errorf("role name = %q, want Operator", got.Roles[0].Name)
	}
	if len(got.Roles[0].Permissions) != 2 {
		t.Errorf("permissions = %d, want 2", len(got.Roles[0].Permissions))
	}

	// Assigning twice is a no-op
	if err := repo.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("second AssignRole() error = %v", err)
	}

	if err := repo.RemoveRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("RemoveRole() error = %v", err)
	}
	got, err = repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(got.Roles) != 0 {
		t.Errorf("roles after removal = %d, want 0", len(got.Roles))
	}
}

func TestUserRepositoryCount(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	createTestUser(t, repo, "alice", "pw")
	createTestUser(t, repo, "bob", "pw")

	count, err = repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}
