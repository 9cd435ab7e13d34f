package auth

import (
	"context"
	"testing"
)

func TestSeedAdmin(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	rbac := NewRBACRepository(db)
	ctx := context.Background()

	password, err := SeedAdmin(ctx, users, rbac, testLogger())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedAdmin() returned empty password on first boot")
	}

	admin, err := users.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}
	if !admin.IsActive {
		t.Error("seed admin is not active")
	}
	if !admin.HasSystemRole() {
		t.Error("seed admin does not hold a system role")
	}

	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil || !ok {
		t.Errorf("generated password not verifiable: ok=%v err=%v", ok, err)
	}

	role, err := rbac.GetRoleByName(ctx, SystemRoleName)
	if err != nil {
		t.Fatalf("GetRoleByName(%s) error = %v", SystemRoleName, err)
	}
	if !role.IsSystem {
		t.Error("seeded role is not flagged as system")
	}
}

func TestSeedAdminSkipsWhenUsersExist(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	rbac := NewRBACRepository(db)
	ctx := context.Background()

	createTestUser(t, users, "existing", "pw")

	password, err := SeedAdmin(ctx, users, rbac, testLogger())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedAdmin() seeded despite existing users")
	}
}
