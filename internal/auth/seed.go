package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/lumina-home/lumina-core/internal/infrastructure/logging"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SystemRoleName is the name of the seeded system role. Members bypass
// permission checks entirely.
const SystemRoleName = "Administrator"

// SeedAdmin creates the Administrator system role and an initial admin
// account on first boot if no users exist. The generated password is
// returned so the caller can surface it once; it must be changed immediately. Returns the generated password
// (empty string if seeding was skipped).
func SeedAdmin(ctx context.Context, users UserRepository, rbac RBACRepository, logger *logging.Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	role, err := rbac.GetRoleByName(ctx, SystemRoleName)
	if errors.Is(err, ErrRoleNotFound) {
		role = &Role{
			Name:        SystemRoleName,
			Description: "Built-in system role, bypasses permission checks",
			IsSystem:    true,
		}
		if err := rbac.CreateRole(ctx, role); err != nil { //nolint:govet // shadow: err re-declared in nested scope
			return "", fmt.Errorf("creating system role: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("looking up system role: %w", err)
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Username:     "admin",
		DisplayName:  "System Administrator",
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}
	if err := users.AssignRole(ctx, admin.ID, role.ID); err != nil {
		return "", fmt.Errorf("assigning system role: %w", err)
	}

	logger.Warn("seed admin account created",
		"username", "admin",
		"password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}
