package connection

import (
	"time"

	"github.com/armyboard/connection-service/internal/model"
)

// Action names a party operation on a connection.
type Action string

const (
	ActionRespond       Action = "seller_respond"
	ActionSubmitBonding Action = "submit_bonding_answers"
	ActionComfort       Action = "set_comfort_decision"
	ActionSocialShare   Action = "set_social_share_decision"
	ActionAgree         Action = "accept_agreement"
	ActionEnd           Action = "end_connection"
	ActionUndo          Action = "undo_connection"
	ActionRate          Action = "rate_connection"
	ActionView          Action = "view"
)

type roles map[model.Role]bool

var (
	buyerOnly  = roles{model.RoleBuyer: true}
	sellerOnly = roles{model.RoleSeller: true}
	both       = roles{model.RoleBuyer: true, model.RoleSeller: true}
)

// stageRules lists, per action, the stages it is valid in and which roles
// may perform it there.  ActionEnd and ActionUndo are handled separately.
var stageRules = map[Action]map[model.Stage]roles{
	ActionRespond: {
		model.StagePendingSeller: sellerOnly,
	},
	ActionSubmitBonding: {
		model.StageBuyerBondingV2: buyerOnly,
		model.StageBonding:        both,
	},
	ActionComfort: {
		model.StagePreview: both,
	},
	ActionSocialShare: {
		model.StageSocial: both,
	},
	ActionAgree: {
		model.StageAgreement: both,
	},
	ActionRate: {
		model.StageChatOpen: both,
	},
}

// Authorize resolves the actor's role and checks that the role may perform
// action a on c at now.  The deadline is checked here as well as by the
// sweeper, so a stale client view can never act on a lapsed stage.
func Authorize(v Variant, c *model.Connection, actorID uint64, a Action, now time.Time) (model.Role, error) {
	role := c.RoleOf(actorID)
	if role == model.RoleNone {
		return role, ErrNotAuthorized
	}
	switch a {
	case ActionView:
		return role, nil
	case ActionUndo:
		return role, authorizeUndo(v, c, role, now)
	}

	if c.Stage.Terminal() {
		return role, ErrStageClosed
	}
	if Expired(c, now) {
		return role, ErrConflictExpired
	}
	if a == ActionEnd {
		return role, nil
	}
	if a == ActionRate && !v.Ratings {
		return role, ErrStageClosed
	}
	allowed, ok := stageRules[a][c.Stage]
	if !ok {
		return role, ErrStageClosed
	}
	if !allowed[role] {
		return role, ErrNotAuthorized
	}
	return role, nil
}

func authorizeUndo(v Variant, c *model.Connection, role model.Role, now time.Time) error {
	if v.UndoWindow <= 0 || c.Stage != model.StageEnded || c.EndedAt == nil || c.EndedBy == model.RoleNone {
		return ErrStageClosed
	}
	if c.EndedBy != role {
		return ErrNotAuthorized
	}
	if now.After(c.EndedAt.Add(v.UndoWindow)) {
		return ErrStageClosed
	}
	return nil
}
