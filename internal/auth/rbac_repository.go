package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RBACRepository defines the interface for role and permission persistence.
type RBACRepository interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id string) error

	CreatePermission(ctx context.Context, perm *Permission) error
	GetPermission(ctx context.Context, id string) (*Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpdatePermission(ctx context.Context, perm *Permission) error
	DeletePermission(ctx context.Context, id string) error

	GrantPermission(ctx context.Context, roleID, permissionID string) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
}

// SQLiteRBACRepository implements RBACRepository using SQLite.
type SQLiteRBACRepository struct {
	db *sql.DB
}

// NewRBACRepository creates a new SQLite-backed RBAC repository.
func NewRBACRepository(db *sql.DB) *SQLiteRBACRepository {
	return &SQLiteRBACRepository{db: db}
}

const roleColumns = "id, name, description, is_system, created_at, updated_at"
const permColumns = "id, name, module, method, path, description, created_at, updated_at"

// CreateRole inserts a new role. The ID is generated if empty.
func (r *SQLiteRBACRepository) CreateRole(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = "rol-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	role.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	role.UpdatedAt = role.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, is_system, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		role.ID, role.Name, nullString(role.Description),
		boolToInt(role.IsSystem), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoleExists
		}
		return fmt.Errorf("creating role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by ID with its permissions loaded.
func (r *SQLiteRBACRepository) GetRole(ctx context.Context, id string) (*Role, error) {
	return r.getRole(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = ?", id)
}

// GetRoleByName retrieves a role by name with its permissions loaded.
func (r *SQLiteRBACRepository) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return r.getRole(ctx, "SELECT "+roleColumns+" FROM roles WHERE name = ?", name)
}

// ListRoles returns all roles ordered by name, with permissions loaded.
func (r *SQLiteRBACRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+roleColumns+" FROM roles ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}

	for i := range roles {
		if roles[i].Permissions, err = loadRolePermissions(ctx, r.db, roles[i].ID); err != nil {
			return nil, err
		}
	}

	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

// UpdateRole modifies a role's name, description, and system flag.
func (r *SQLiteRBACRepository) UpdateRole(ctx context.Context, role *Role) error {
	now := time.Now().UTC().Format(time.RFC3339)
	role.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE roles SET name = ?, description = ?, is_system = ?, updated_at = ? WHERE id = ?`,
		role.Name, nullString(role.Description), boolToInt(role.IsSystem), now, role.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoleExists
		}
		return fmt.Errorf("updating role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// DeleteRole removes a role. Assignments and grants are removed by cascade.
func (r *SQLiteRBACRepository) DeleteRole(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// CreatePermission inserts a new permission. The ID is generated if empty
// and the method is stored uppercase.
func (r *SQLiteRBACRepository) CreatePermission(ctx context.Context, perm *Permission) error {
	if perm.ID == "" {
		perm.ID = "prm-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	perm.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	perm.UpdatedAt = perm.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (id, name, module, method, path, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		perm.ID, perm.Name, perm.Module, normaliseMethod(perm.Method), perm.Path,
		nullString(perm.Description), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPermissionExists
		}
		return fmt.Errorf("creating permission: %w", err)
	}
	return nil
}

// GetPermission retrieves a permission by ID.
func (r *SQLiteRBACRepository) GetPermission(ctx context.Context, id string) (*Permission, error) {
	perm, err := scanPermission(r.db.QueryRowContext(ctx,
		"SELECT "+permColumns+" FROM permissions WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	return perm, nil
}

// ListPermissions returns all permissions ordered by path then method.
func (r *SQLiteRBACRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+permColumns+" FROM permissions ORDER BY path ASC, method ASC")
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}

	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

// UpdatePermission modifies a permission's fields.
func (r *SQLiteRBACRepository) UpdatePermission(ctx context.Context, perm *Permission) error {
	now := time.Now().UTC().Format(time.RFC3339)
	perm.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE permissions SET name = ?, module = ?, method = ?, path = ?, description = ?, updated_at = ? WHERE id = ?`,
		perm.Name, perm.Module, normaliseMethod(perm.Method), perm.Path,
		nullString(perm.Description), now, perm.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPermissionExists
		}
		return fmt.Errorf("updating permission: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPermissionNotFound
	}
	return nil
}

// DeletePermission removes a permission. Grants are removed by cascade.
func (r *SQLiteRBACRepository) DeletePermission(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM permissions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting permission: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPermissionNotFound
	}
	return nil
}

// GrantPermission attaches a permission to a role. Granting an
// already-held permission is a no-op.
func (r *SQLiteRBACRepository) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)",
		roleID, permissionID)
	if err != nil {
		return fmt.Errorf("granting permission: %w", err)
	}
	return nil
}

// RevokePermission detaches a permission from a role.
func (r *SQLiteRBACRepository) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM role_permissions WHERE role_id = ? AND permission_id = ?",
		roleID, permissionID)
	if err != nil {
		return fmt.Errorf("revoking permission: %w", err)
	}
	return nil
}

func (r *SQLiteRBACRepository) getRole(ctx context.Context, query string, arg any) (*Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}

	if role.Permissions, err = loadRolePermissions(ctx, r.db, role.ID); err != nil {
		return nil, err
	}
	return role, nil
}

// loadRolePermissions fetches the permissions granted to a role. Shared
// with the user repository's eager role loading.
func loadRolePermissions(ctx context.Context, db *sql.DB, roleID string) ([]Permission, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT p.id, p.name, p.module, p.method, p.path, p.description, p.created_at, p.updated_at
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = ?
		 ORDER BY p.path ASC, p.method ASC`, roleID)
	if err != nil {
		return nil, fmt.Errorf("loading role permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}

	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

func scanRole(s scanner) (*Role, error) {
	var role Role
	var description sql.NullString
	var isSystem int
	var createdAt, updatedAt string

	err := s.Scan(&role.ID, &role.Name, &description, &isSystem, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}

	role.Description = description.String
	role.IsSystem = isSystem != 0
	role.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	role.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &role, nil
}

func scanPermission(s scanner) (*Permission, error) {
	var perm Permission
	var description sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&perm.ID, &perm.Name, &perm.Module, &perm.Method, &perm.Path,
		&description, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("scanning permission: %w", err)
	}

	perm.Description = description.String
	perm.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	perm.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &perm, nil
}

func normaliseMethod(m string) string {
	return strings.ToUpper(strings.TrimSpace(m))
}
