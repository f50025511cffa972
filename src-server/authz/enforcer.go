// Package authz decides which team roles may perform which action on which
// resource. Policies are embedded; there is no runtime policy editing.
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

type Action string

const (
	ACTION_READ  = Action("read")
	ACTION_WRITE = Action("write")
)

type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("NewEnforcer: can't load model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("NewEnforcer: %w", err)
	}
	if err := loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, fmt.Errorf("NewEnforcer: %w", err)
	}
	return &Enforcer{enforcer: enforcer}, nil
}

// loadPolicy reads "p, sub, obj, act" and "g, child, parent" lines.
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("can't add policy %q: %w", line, err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("can't add grouping policy %q: %w", line, err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Allowed reports whether role may perform act on resource. Evaluation
// errors deny.
func (e *Enforcer) Allowed(role, resource string, act Action) bool {
	ok, err := e.enforcer.Enforce(role, resource, string(act))
	if err != nil {
		return false
	}
	return ok
}

// CanReview reports whether role is allowed to score abstracts.
func (e *Enforcer) CanReview(role string) bool {
	return e.Allowed(role, "review", ACTION_WRITE)
}
