package approval

import (
	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Authorizer decides whether an actor may take an action on a token kind.
type Authorizer interface {
	Authorize(actor string, kind Kind, action Action) error
}

type allowAll struct{}

func (allowAll) Authorize(string, Kind, Action) error { return nil }

type CasbinAuthorizer struct {
	enforcer *casbin.Enforcer
}

func NewCasbinAuthorizer(e *casbin.Enforcer) *CasbinAuthorizer {
	return &CasbinAuthorizer{enforcer: e}
}

// NewModelAuthorizer builds an authorizer from an inline model and policy
// lines of the form "p, <actor>, <KIND>, <action>".
func NewModelAuthorizer(text string, policies [][]string) (*CasbinAuthorizer, error) {
	m, err := model.NewModelFromString(text)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if len(policies) > 0 {
		if _, err := e.AddPolicies(policies); err != nil {
			return nil, err
		}
	}
	return NewCasbinAuthorizer(e), nil
}

func (a *CasbinAuthorizer) Authorize(actor string, kind Kind, action Action) error {
	ok, err := a.enforcer.Enforce(actor, string(kind), string(action))
	if err != nil {
		return errutil.Internal("failed to evaluate policy", err)
	}
	if !ok {
		return errutil.Forbidden("actor is not allowed to decide this token", nil)
	}
	return nil
}

// NewAuthorizer allows every actor unless an access control model is configured.
func NewAuthorizer(cfg *config.Config) (Authorizer, error) {
	if cfg == nil || cfg.AccessControl.Model == "" {
		return allowAll{}, nil
	}
	e, err := casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
	if err != nil {
		return nil, err
	}
	return NewCasbinAuthorizer(e), nil
}
