// Package approval decides which roles may move a post between statuses.
package approval

import (
	"fmt"

	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/models"
)

type Role string

const (
	RoleEditor   Role = "editor"
	RoleApprover Role = "approver"
	RoleOwner    Role = "owner"
)

// ParseRole falls back to owner for empty or unknown values; a user without
// a team acts on their own posts with full rights.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleEditor, RoleApprover:
		return Role(s)
	default:
		return RoleOwner
	}
}

// LookupRole is the strict form of ParseRole: unknown values are rejected.
func LookupRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleEditor, RoleApprover, RoleOwner:
		return Role(s), true
	}
	return "", false
}

// Grants reports whether a holder of r may hand out credentials acting as
// other. Only owners can delegate a role different from their own.
func (r Role) Grants(other Role) bool {
	return r == RoleOwner || r == other
}

type Action string

const (
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionSchedule Action = "schedule"
	ActionPublish  Action = "publish"
)

// target is the status an action moves a post to.
var target = map[Action]models.PostStatus{
	ActionSubmit:   models.PostStatusPendingApproval,
	ActionApprove:  models.PostStatusApproved,
	ActionReject:   models.PostStatusDraft,
	ActionSchedule: models.PostStatusApproved,
	ActionPublish:  models.PostStatusPublishing,
}

var allowed = map[Role]map[Action]bool{
	RoleEditor: {
		ActionSubmit: true,
	},
	RoleApprover: {
		ActionApprove:  true,
		ActionReject:   true,
		ActionSchedule: true,
		ActionPublish:  true,
	},
	RoleOwner: {
		ActionSubmit:   true,
		ActionApprove:  true,
		ActionReject:   true,
		ActionSchedule: true,
		ActionPublish:  true,
	},
}

type Gate struct{}

func NewGate() *Gate {
	return &Gate{}
}

// Authorize checks both that role may perform action and that the action is a
// legal transition from current. It returns the status the post moves to.
func (g *Gate) Authorize(role Role, action Action, current models.PostStatus) (models.PostStatus, error) {
	to, ok := target[action]
	if !ok {
		return "", apperror.Validation(fmt.Sprintf("unknown action %q", action))
	}

	// an editor may still publish or schedule a post someone else approved
	editorOnApproved := role == RoleEditor && current == models.PostStatusApproved &&
		(action == ActionPublish || action == ActionSchedule)

	if !allowed[role][action] && !editorOnApproved {
		return "", apperror.Forbidden(fmt.Sprintf("role %s may not %s posts", role, action))
	}

	if err := models.Transition(current, to); err != nil {
		return "", apperror.Conflict(err.Error(), err)
	}
	return to, nil
}
