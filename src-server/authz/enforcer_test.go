package authz_test

import (
	"testing"

	"confdesk/src-server/authz"
)

func TestEnforcer(t *testing.T) {
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		role     string
		resource string
		act      authz.Action
		want     bool
	}{
		{"owner", "team", authz.ACTION_WRITE, true},
		{"owner", "anything", authz.ACTION_READ, true},
		{"admin", "team", authz.ACTION_WRITE, true},
		{"admin", "event", authz.ACTION_WRITE, true},
		{"admin", "registration", authz.ACTION_READ, true},
		{"coordinator", "registration", authz.ACTION_WRITE, true},
		{"coordinator", "event", authz.ACTION_WRITE, false},
		{"coordinator", "team", authz.ACTION_READ, false},
		{"viewer", "registration", authz.ACTION_READ, true},
		{"viewer", "registration", authz.ACTION_WRITE, false},
		{"reviewer", "review", authz.ACTION_WRITE, true},
		{"reviewer", "registration", authz.ACTION_READ, false},
		{"nobody", "event", authz.ACTION_READ, false},
	} {
		if got := enforcer.Allowed(tc.role, tc.resource, tc.act); got != tc.want {
			t.Errorf("Allowed(%s, %s, %s) = %v, want %v", tc.role, tc.resource, tc.act, got, tc.want)
		}
	}

	for role, want := range map[string]bool{
		"owner":       true,
		"admin":       true,
		"reviewer":    true,
		"coordinator": false,
		"viewer":      false,
	} {
		if got := enforcer.CanReview(role); got != want {
			t.Errorf("CanReview(%s) = %v, want %v", role, got, want)
		}
	}
}
