package permission

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned by Require when a rule does not grant access.
var ErrPermissionDenied = errors.New("permission denied")

// Permission names
const (
	ViewOrganization   = "view_organization"
	ChangeOrganization = "change_organization"
	DeleteOrganization = "delete_organization"
	ViewMembership     = "view_membership"
	AddMembership      = "add_membership"
	ChangeMembership   = "change_membership"
	DeleteMembership   = "delete_membership"
	AcceptInvitation   = "accept_invitation"
	ApproveInvitation  = "approve_invitation"
	RejectInvitation   = "reject_invitation"
	RevokeInvitation   = "revoke_invitation"
	ChangeUser         = "change_user"
)

// Engine maps permission names to rules. Evaluation is pure and total: an
// unknown permission or an indeterminate rule never grants access.
type Engine struct {
	rules map[string]Expr
}

// NewEngine returns an engine loaded with the default rule set.
func NewEngine() *Engine {
	e := &Engine{rules: make(map[string]Expr)}
	for name, rule := range DefaultRules() {
		e.Register(name, rule)
	}
	return e
}

// Register installs or replaces a rule.
func (e *Engine) Register(name string, rule Expr) {
	e.rules[name] = rule
}

// Evaluate returns the raw three-valued result.
func (e *Engine) Evaluate(s *Subject, permission string, obj any) Truth {
	rule, ok := e.rules[permission]
	if !ok {
		return False
	}
	return rule.Eval(s, obj)
}

// Check reports whether the subject holds the permission on obj.
func (e *Engine) Check(s *Subject, permission string, obj any) bool {
	return e.Evaluate(s, permission, obj) == True
}

// Require returns an error wrapping ErrPermissionDenied unless Check passes.
func (e *Engine) Require(s *Subject, permission string, obj any) error {
	if e.Check(s, permission, obj) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrPermissionDenied, permission)
}

// DefaultRules returns the rule set for organizations, memberships, invitations and users.
func DefaultRules() map[string]Expr {
	return map[string]Expr{
		ViewOrganization:   Or(Not(IsPrivate), And(IsAuthenticated, IsMember)),
		ChangeOrganization: And(IsAuthenticated, IsAdmin),
		DeleteOrganization: Never,

		ViewMembership:   And(IsAuthenticated, IsMember),
		AddMembership:    And(IsAuthenticated, IsAdmin),
		ChangeMembership: And(IsAuthenticated, Or(IsAdmin, And(IsMember, IsSelf))),
		DeleteMembership: And(IsAuthenticated, Or(IsAdmin, And(IsMember, IsSelf))),

		AcceptInvitation:  And(IsAuthenticated, Not(IsRequest), IsInvitee),
		ApproveInvitation: And(IsAuthenticated, IsRequest, IsAdmin, Not(IsRequester)),
		RejectInvitation: And(IsAuthenticated, Or(
			And(Not(IsRequest), IsInvitee),
			And(IsRequest, IsAdmin, Not(IsRequester)),
		)),
		RevokeInvitation: And(IsAuthenticated, Or(IsAdmin, IsRequester)),

		ChangeUser: And(IsAuthenticated, IsSelf),
	}
}
