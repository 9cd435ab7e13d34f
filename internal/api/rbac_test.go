package api

import (
	"net/http"
	"testing"

	"github.com/lumina-home/lumina-core/internal/auth"
)

func TestAuthorization(t *testing.T) {
	f := newServerFixture(t)

	admin := f.adminRole()
	viewer := f.roleWithPermission("user-viewer", "GET", "/users")

	f.createUser("root", "secret-pass", admin)
	f.createUser("viewer", "secret-pass", viewer)
	f.createUser("plain", "secret-pass")

	rootTok := f.login("root", "secret-pass").AccessToken
	viewerTok := f.login("viewer", "secret-pass").AccessToken
	plainTok := f.login("plain", "secret-pass").AccessToken

	t.Run("no roles is forbidden", func(t *testing.T) {
		resp := f.do(http.MethodGet, "/users", plainTok, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("matching permission allows", func(t *testing.T) {
		resp := f.do(http.MethodGet, "/users", viewerTok, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("method must match", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/users", viewerTok, createUserRequest{
			Username: "sneaky",
			Password: "secret-pass",
		})
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("path must match", func(t *testing.T) {
		resp := f.do(http.MethodGet, "/devices", viewerTok, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("system role bypasses checks", func(t *testing.T) {
		for _, path := range []string{"/users", "/roles", "/permissions", "/devices", "/audit"} {
			resp := f.do(http.MethodGet, path, rootTok, nil)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
			}
		}
	})

	t.Run("no token on checked route", func(t *testing.T) {
		resp := f.do(http.MethodGet, "/users", "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("pattern row guards parameterized route", func(t *testing.T) {
		inspector := f.roleWithPermission("user-inspector", "GET", "/users/{id}")
		target := f.createUser("inspector", "secret-pass", inspector)
		tok := f.login("inspector", "secret-pass").AccessToken

		resp := f.do(http.MethodGet, "/users/"+target.ID, tok, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET /users/{id} status = %d, want 200", resp.StatusCode)
		}

		// The row does not grant the collection route
		resp = f.do(http.MethodGet, "/users", tok, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("GET /users status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("express style row guards parameterized route", func(t *testing.T) {
		auditor := f.roleWithPermission("role-auditor", "GET", "/roles/:id")
		f.createUser("auditor", "secret-pass", auditor)
		tok := f.login("auditor", "secret-pass").AccessToken

		resp := f.do(http.MethodGet, "/roles/"+auditor.ID, tok, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET /roles/{id} status = %d, want 200", resp.StatusCode)
		}
	})
}

func TestUserCRUD(t *testing.T) {
	f := newServerFixture(t)
	admin := f.adminRole()
	f.createUser("root", "secret-pass", admin)
	tok := f.login("root", "secret-pass").AccessToken

	resp := f.do(http.MethodPost, "/users", tok, createUserRequest{
		Username:    "carol",
		Password:    "secret-pass",
		DisplayName: "Carol",
		RoleIDs:     []string{admin.ID},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var carol auth.User
	decodeBody(t, resp, &carol)
	if carol.ID == "" || carol.Username != "carol" {
		t.Fatalf("unexpected created user: %+v", carol)
	}
	if len(carol.Roles) != 1 {
		t.Errorf("roles = %d, want 1", len(carol.Roles))
	}

	t.Run("duplicate username", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/users", tok, createUserRequest{
			Username: "carol",
			Password: "secret-pass",
		})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("short password", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/users", tok, createUserRequest{
			Username: "dave",
			Password: "short",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("invalid username", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/users", tok, createUserRequest{
			Username: "has spaces!",
			Password: "secret-pass",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("get", func(t *testing.T) {
		resp := f.do(http.MethodGet, "/users/"+carol.ID, tok, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var got auth.User
		decodeBody(t, resp, &got)
		if got.Username != "carol" {
			t.Errorf("username = %q, want carol", got.Username)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		resp := f.do(http.MethodGet, "/users/no-such-id", tok, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("patch", func(t *testing.T) {
		name := "Caroline"
		active := false
		resp := f.do(http.MethodPatch, "/users/"+carol.ID, tok, updateUserRequest{
			DisplayName: &name,
			IsActive:    &active,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var got auth.User
		decodeBody(t, resp, &got)
		if got.DisplayName != "Caroline" {
			t.Errorf("display_name = %q, want Caroline", got.DisplayName)
		}
		if got.IsActive {
			t.Error("expected user to be deactivated")
		}
	})

	t.Run("change password", func(t *testing.T) {
		active := true
		f.do(http.MethodPatch, "/users/"+carol.ID, tok, updateUserRequest{IsActive: &active})

		resp := f.do(http.MethodPut, "/users/"+carol.ID+"/password", tok, changePasswordRequest{
			Password: "brand-new-pass",
		})
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", resp.StatusCode)
		}
		f.login("carol", "brand-new-pass")
	})

	t.Run("remove role", func(t *testing.T) {
		resp := f.do(http.MethodDelete, "/users/"+carol.ID+"/roles/"+admin.ID, tok, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", resp.StatusCode)
		}
	})

	t.Run("assign role", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/users/"+carol.ID+"/roles", tok, assignRoleRequest{
			RoleID: admin.ID,
		})
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", resp.StatusCode)
		}
	})

	t.Run("self delete refused", func(t *testing.T) {
		me := f.do(http.MethodGet, "/auth/me", tok, nil)
		var root auth.User
		decodeBody(t, me, &root)

		resp := f.do(http.MethodDelete, "/users/"+root.ID, tok, nil)
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("delete", func(t *testing.T) {
		resp := f.do(http.MethodDelete, "/users/"+carol.ID, tok, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", resp.StatusCode)
		}
		resp = f.do(http.MethodGet, "/users/"+carol.ID, tok, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status after delete = %d, want 404", resp.StatusCode)
		}
	})
}

func TestRoleCRUD(t *testing.T) {
	f := newServerFixture(t)
	admin := f.adminRole()
	f.createUser("root", "secret-pass", admin)
	tok := f.login("root", "secret-pass").AccessToken

	resp := f.do(http.MethodPost, "/roles", tok, roleRequest{
		Name:        "operator",
		Description: "controls devices",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var role auth.Role
	decodeBody(t, resp, &role)
	if role.ID == "" || role.Name != "operator" {
		t.Fatalf("unexpected created role: %+v", role)
	}

	t.Run("missing name", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/roles", tok, roleRequest{Description: "no name"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/roles", tok, roleRequest{Name: "operator"})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	var perm auth.Permission
	t.Run("grant permission", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/permissions", tok, permissionRequest{
			Name:   "devices-read",
			Method: "GET",
			Path:   "/devices",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create permission status = %d, want 201", resp.StatusCode)
		}
		decodeBody(t, resp, &perm)

		resp = f.do(http.MethodPost, "/roles/"+role.ID+"/permissions", tok, grantPermissionRequest{
			PermissionID: perm.ID,
		})
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("grant status = %d, want 204", resp.StatusCode)
		}

		resp = f.do(http.MethodGet, "/roles/"+role.ID, tok, nil)
		var got auth.Role
		decodeBody(t, resp, &got)
		if len(got.Permissions) != 1 {
			t.Errorf("permissions = %d, want 1", len(got.Permissions))
		}
	})

	t.Run("revoke permission", func(t *testing.T) {
		resp := f.do(http.MethodDelete, "/roles/"+role.ID+"/permissions/"+perm.ID, tok, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("revoke status = %d, want 204", resp.StatusCode)
		}
	})

	t.Run("patch", func(t *testing.T) {
		resp := f.do(http.MethodPatch, "/roles/"+role.ID, tok, roleRequest{
			Description: "updated description",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var got auth.Role
		decodeBody(t, resp, &got)
		if got.Description != "updated description" {
			t.Errorf("description = %q", got.Description)
		}
	})

	t.Run("system role delete refused", func(t *testing.T) {
		resp := f.do(http.MethodDelete, "/roles/"+admin.ID, tok, nil)
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("delete", func(t *testing.T) {
		resp := f.do(http.MethodDelete, "/roles/"+role.ID, tok, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", resp.StatusCode)
		}
	})
}

func TestPermissionCRUD(t *testing.T) {
	f := newServerFixture(t)
	admin := f.adminRole()
	f.createUser("root", "secret-pass", admin)
	tok := f.login("root", "secret-pass").AccessToken

	resp := f.do(http.MethodPost, "/permissions", tok, permissionRequest{
		Name:   "audit-read",
		Module: "audit",
		Method: "GET",
		Path:   "/audit",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var perm auth.Permission
	decodeBody(t, resp, &perm)
	if perm.Module != "audit" {
		t.Errorf("module = %q, want audit", perm.Module)
	}

	t.Run("missing fields", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/permissions", tok, permissionRequest{Name: "incomplete"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("list", func(t *testing.T) {
		resp := f.do(http.MethodGet, "/permissions", tok, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body struct {
			Permissions []auth.Permission `json:"permissions"`
		}
		decodeBody(t, resp, &body)
		if len(body.Permissions) == 0 {
			t.Error("expected at least one permission")
		}
	})

	t.Run("patch", func(t *testing.T) {
		resp := f.do(http.MethodPatch, "/permissions/"+perm.ID, tok, permissionRequest{
			Path: "/audit/events",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var got auth.Permission
		decodeBody(t, resp, &got)
		if got.Path != "/audit/events" {
			t.Errorf("path = %q, want /audit/events", got.Path)
		}
		if got.Module != "audit" {
			t.Errorf("module = %q, want audit (untouched by patch)", got.Module)
		}
	})

	t.Run("delete", func(t *testing.T) {
		resp := f.do(http.MethodDelete, "/permissions/"+perm.ID, tok, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", resp.StatusCode)
		}
		resp = f.do(http.MethodGet, "/permissions/"+perm.ID, tok, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status after delete = %d, want 404", resp.StatusCode)
		}
	})
}
