package auth

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		prefix string
		want   string
	}{
		{"prefix and version stripped", "/api/v1/devices", "api", "/devices"},
		{"deeper path", "/api/v1/devices/dev-42/state", "api", "/devices/dev-42/state"},
		{"different version", "/api/v2/devices", "api", "/devices"},
		{"multi digit version", "/api/v12/devices", "api", "/devices"},
		{"no version segment", "/api/devices", "api", "/devices"},
		{"no prefix match", "/metrics", "api", "/metrics"},
		{"version-like resource kept", "/api/v1/vault", "api", "/vault"},
		{"bare v segment not version", "/api/vx/devices", "api", "/vx/devices"},
		{"trailing slash trimmed", "/api/v1/devices/", "api", "/devices"},
		{"route pattern kept", "/api/v1/users/{id}", "api", "/users/{id}"},
		{"express param rewritten", "/api/v1/users/:id", "api", "/users/{id}"},
		{"param without prefix", "/roles/:roleID", "", "/roles/{roleID}"},
		{"bare colon segment kept", "/api/v1/odd/:", "api", "/odd/:"},
		{"root", "/", "api", "/"},
		{"empty", "", "api", "/"},
		{"prefix only", "/api/v1", "api", "/"},
		{"empty prefix", "/api/v1/devices", "", "/api/v1/devices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePath(tt.path, tt.prefix); got != tt.want {
				t.Errorf("NormalizePath(%q, %q) = %q, want %q", tt.path, tt.prefix, got, tt.want)
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	operator := &User{
		ID:       "usr-1",
		Username: "alice",
		Roles: []Role{
			{
				Name: "Operator",
				Permissions: []Permission{
					{Method: "GET", Path: "/devices"},
					{Method: "POST", Path: "/devices"},
					{Method: "GET", Path: "/users/{id}"},
					{Method: "DELETE", Path: "/roles/:id"},
				},
			},
		},
	}

	admin := &User{
		ID:       "usr-2",
		Username: "root",
		Roles:    []Role{{Name: SystemRoleName, IsSystem: true}},
	}

	tests := []struct {
		name   string
		user   *User
		method string
		path   string
		want   bool
	}{
		{"exact match", operator, "GET", "/devices", true},
		{"method matters", operator, "DELETE", "/devices", false},
		{"path matters", operator, "GET", "/devices/dev-1", false},
		{"route pattern match", operator, "GET", "/users/{id}", true},
		{"express row guards pattern route", operator, "DELETE", "/roles/{id}", true},
		{"pattern row does not leak to list route", operator, "GET", "/users", false},
		{"lowercase method matches", operator, "get", "/devices", true},
		{"system role bypasses everything", admin, "DELETE", "/anything/at/all", true},
		{"nil user denied", nil, "GET", "/devices", false},
		{"no roles denied", &User{ID: "usr-3"}, "GET", "/devices", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.user, tt.method, tt.path); got != tt.want {
				t.Errorf("Allowed(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
			}
		})
	}
}
