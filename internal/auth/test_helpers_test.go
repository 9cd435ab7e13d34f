package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lumina-home/lumina-core/internal/infrastructure/logging"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			display_name TEXT,
			email TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE roles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			is_system INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE permissions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			module TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			description TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (method, path)
		);

		CREATE TABLE user_roles (
			user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			role_id TEXT NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, role_id)
		);

		CREATE TABLE role_permissions (
			role_id TEXT NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
			permission_id TEXT NOT NULL REFERENCES permissions (id) ON DELETE CASCADE,
			PRIMARY KEY (role_id, permission_id)
		);

		CREATE TABLE refresh_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			token_hash TEXT NOT NULL UNIQUE,
			ip_address TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	return db
}

var (
	testKeyOnce sync.Once
	testKeyPair *KeyManager
)

// testKeys returns a KeyManager backed by generated RSA keys. Generation
// runs once per test binary; 2048-bit keys are slow to mint.
func testKeys(t *testing.T) *KeyManager {
	t.Helper()

	testKeyOnce.Do(func() {
		access, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generating access key: %v", err)
		}
		refresh, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generating refresh key: %v", err)
		}
		testKeyPair = &KeyManager{
			accessPrivate:  access,
			accessPublic:   &access.PublicKey,
			refreshPrivate: refresh,
			refreshPublic:  &refresh.PublicKey,
		}
	})
	return testKeyPair
}

// testLogger returns a quiet logger for tests.
func testLogger() *logging.Logger {
	return logging.Default()
}

// createTestUser inserts a user with the given username and password,
// returning the stored user.
func createTestUser(t *testing.T, repo UserRepository, username, password string) *User {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		DisplayName:  "Test User",
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return user
}

// createTestRole inserts a role with the given permissions granted.
func createTestRole(t *testing.T, rbac RBACRepository, name string, system bool, perms ...Permission) *Role {
	t.Helper()

	ctx := context.Background()
	role := &Role{Name: name, IsSystem: system}
	if err := rbac.CreateRole(ctx, role); err != nil {
		t.Fatalf("creating test role: %v", err)
	}

	for i := range perms {
		if err := rbac.CreatePermission(ctx, &perms[i]); err != nil {
			t.Fatalf("creating test permission: %v", err)
		}
		if err := rbac.GrantPermission(ctx, role.ID, perms[i].ID); err != nil {
			t.Fatalf("granting test permission: %v", err)
		}
	}
	return role
}

// fixedClock returns a clock function pinned to the given time.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
