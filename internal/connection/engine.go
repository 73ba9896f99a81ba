// Package connection implements the connection stage state machine: the
// expiry checker, the participant guard, the gate aggregator and the
// transition engine.  Everything here is pure; persistence, locking and
// notification delivery live in the service layer.
package connection

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/armyboard/connection-service/internal/model"
)

// EventType names a notification the engine asks the dispatcher to send.
type EventType string

const (
	EventRequested         EventType = "connection_requested"
	EventAccepted          EventType = "seller_accepted"
	EventDeclined          EventType = "seller_declined"
	EventBondingSubmitted  EventType = "bonding_submitted"
	EventBondingCompleted  EventType = "bonding_completed"
	EventComfortSubmitted  EventType = "comfort_submitted"
	EventComfortDeclined   EventType = "comfort_declined"
	EventSocialSubmitted   EventType = "social_share_submitted"
	EventAgreementAccepted EventType = "agreement_accepted"
	EventMatchConfirmed    EventType = "match_confirmed"
	EventEnded             EventType = "connection_ended"
	EventCancelled         EventType = "connection_cancelled"
	EventRestored          EventType = "connection_restored"
	EventExpired           EventType = "connection_expired"
	EventRated             EventType = "connection_rated"
)

// Event is one notification for one recipient.
type Event struct {
	Type         EventType
	ConnectionID uint64
	ListingID    uint64
	Kind         model.Kind
	Recipient    model.Role
	RecipientID  uint64
	Actor        model.Role
	Stage        model.Stage
	At           time.Time
}

// LockIntent tells the caller what to do with the listing lock after the
// transition is persisted.
type LockIntent int

const (
	LockKeep LockIntent = iota
	LockAcquire
	LockRelease
)

// Command is one actor request against a connection.  Only the fields
// relevant to Action are read.
type Command struct {
	Action  Action
	ActorID uint64

	Accept      bool  // ActionRespond
	SocialShare *bool // ActionRespond: optional seller share preference
	QuestionIDs []uint64

	Answers  map[uint64]string // ActionSubmitBonding
	Decision bool              // ActionComfort, ActionSocialShare
	Reason   string            // ActionEnd
	Score    int               // ActionRate
}

// Outcome is the result of a successful transition.
type Outcome struct {
	Conn    model.Connection
	Role    model.Role
	Answers []model.BondingAnswer
	Events  []Event
	Lock    LockIntent
}

// Engine applies commands to connections using per-kind variant rules.
type Engine struct {
	variants Variants
}

// NewEngine builds an engine.  A nil map selects DefaultVariants.
func NewEngine(vs Variants) *Engine {
	if vs == nil {
		vs = DefaultVariants()
	}
	return &Engine{variants: vs}
}

// Variant exposes the rules for kind k.
func (e *Engine) Variant(k model.Kind) (Variant, error) { return e.variants.For(k) }

// NewConnectionRequest describes a buyer's connect call.
type NewConnectionRequest struct {
	Listing         model.Listing
	BuyerID         uint64
	WantSocialShare *bool
	QuestionIDs     []uint64
	Answers         map[uint64]string
}

// Create starts a connection in pending_seller.  The returned outcome asks
// the caller to lock the listing and carries the buyer's up-front bonding
// answers when supplied.
func (e *Engine) Create(req NewConnectionRequest, now time.Time) (Outcome, error) {
	v, err := e.variants.For(req.Listing.Kind)
	if err != nil {
		return Outcome{}, err
	}
	if !req.Listing.Available() {
		return Outcome{}, ErrListingUnavailable
	}
	if req.BuyerID == 0 || req.BuyerID == req.Listing.SellerID {
		return Outcome{}, fmt.Errorf("%w: cannot connect to your own listing", ErrValidation)
	}

	c := model.Connection{
		Kind:      v.Kind,
		ListingID: req.Listing.ID,
		BuyerID:   req.BuyerID,
		SellerID:  req.Listing.SellerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.WantSocialShare != nil {
		share := *req.WantSocialShare
		c.BuyerSharePreference = &share
	}
	enterStage(&c, v, model.StagePendingSeller, now)

	out := Outcome{Role: model.RoleBuyer, Lock: LockAcquire}
	switch {
	case len(req.Answers) > 0:
		if err := fixQuestions(&c, v, req.QuestionIDs); err != nil {
			return Outcome{}, err
		}
		answers, err := validateAnswers(c.BondingQuestionIDs, req.Answers)
		if err != nil {
			return Outcome{}, err
		}
		t := now
		c.BuyerBondingSubmittedAt = &t
		out.Answers = toAnswers(model.RoleBuyer, c.BondingQuestionIDs, answers, now)
	case len(req.QuestionIDs) > 0:
		return Outcome{}, fmt.Errorf("%w: question_ids require bonding_answers", ErrValidation)
	}

	out.Conn = c
	out.notify(EventRequested, model.RoleBuyer)
	finalize(&out, now)
	return out, nil
}

// Apply runs cmd against c at now.  When the stage deadline has lapsed the
// returned outcome holds the expired connection together with
// ErrConflictExpired; the caller must persist it before reporting the
// error.  Any other error leaves c untouched.
func (e *Engine) Apply(c model.Connection, cmd Command, now time.Time) (Outcome, error) {
	v, err := e.variants.For(c.Kind)
	if err != nil {
		return Outcome{}, err
	}
	role, err := Authorize(v, &c, cmd.ActorID, cmd.Action, now)
	if errors.Is(err, ErrConflictExpired) {
		out, _ := e.Expire(c, now)
		return out, err
	}
	if err != nil {
		return Outcome{}, err
	}

	next := c.Clone()
	out := Outcome{Role: role}
	switch cmd.Action {
	case ActionRespond:
		err = e.respond(&next, v, cmd, &out, now)
	case ActionSubmitBonding:
		err = e.submitBonding(&next, v, role, cmd, &out, now)
	case ActionComfort:
		err = e.comfort(&next, v, role, cmd.Decision, &out, now)
	case ActionSocialShare:
		err = e.socialShare(&next, v, role, cmd.Decision, &out, now)
	case ActionAgree:
		err = e.agree(&next, v, role, &out, now)
	case ActionEnd:
		e.end(&next, v, role, cmd.Reason, &out, now)
	case ActionUndo:
		e.undo(&next, v, role, &out, now)
	case ActionRate:
		err = e.rate(&next, role, cmd.Score, &out)
	default:
		err = fmt.Errorf("%w: unsupported action %q", ErrValidation, cmd.Action)
	}
	if err != nil {
		return Outcome{}, err
	}
	next.UpdatedAt = now
	out.Conn = next
	finalize(&out, now)
	return out, nil
}

// Expire moves c to expired when its deadline lapsed.  It reports false
// and leaves c alone otherwise.
func (e *Engine) Expire(c model.Connection, now time.Time) (Outcome, bool) {
	if !Expired(&c, now) {
		return Outcome{Conn: c}, false
	}
	next := c.Clone()
	enterStage(&next, Variant{}, model.StageExpired, now)
	next.UpdatedAt = now
	out := Outcome{Conn: next, Lock: LockRelease}
	out.notifyBoth(EventExpired, model.RoleNone)
	finalize(&out, now)
	return out, true
}

func (e *Engine) respond(c *model.Connection, v Variant, cmd Command, out *Outcome, now time.Time) error {
	if !cmd.Accept {
		enterStage(c, v, model.StageDeclined, now)
		out.Lock = LockRelease
		out.notify(EventDeclined, model.RoleSeller)
		return nil
	}
	if len(c.BondingQuestionIDs) == 0 {
		if err := fixQuestions(c, v, cmd.QuestionIDs); err != nil {
			return err
		}
	}
	if cmd.SocialShare != nil {
		share := *cmd.SocialShare
		c.SellerSharePreference = &share
	}
	enterStage(c, v, v.AcceptStage, now)
	out.notify(EventAccepted, model.RoleSeller)
	settle(c, v, out, now)
	return nil
}

func (e *Engine) submitBonding(c *model.Connection, v Variant, role model.Role, cmd Command, out *Outcome, now time.Time) error {
	field := &c.BuyerBondingSubmittedAt
	if role == model.RoleSeller {
		field = &c.SellerBondingSubmittedAt
	}
	if *field != nil {
		return ErrAlreadySubmitted
	}
	answers, err := validateAnswers(c.BondingQuestionIDs, cmd.Answers)
	if err != nil {
		return err
	}
	t := now
	*field = &t
	out.Answers = toAnswers(role, c.BondingQuestionIDs, answers, now)
	out.notify(EventBondingSubmitted, role)
	settle(c, v, out, now)
	return nil
}

func (e *Engine) comfort(c *model.Connection, v Variant, role model.Role, decision bool, out *Outcome, now time.Time) error {
	field := &c.BuyerComfort
	if role == model.RoleSeller {
		field = &c.SellerComfort
	}
	if *field != nil {
		return ErrAlreadySubmitted
	}
	*field = &decision

	switch Comfort(c.BuyerComfort, c.SellerComfort) {
	case ComfortEnd:
		enterStage(c, v, model.StageEnded, now)
		c.EndReason = "comfort_declined"
		out.Lock = LockRelease
		out.notify(EventComfortDeclined, role)
	case ComfortAdvance:
		enterStage(c, v, model.StageSocial, now)
		out.notify(EventComfortSubmitted, role)
		settle(c, v, out, now)
	default:
		out.notify(EventComfortSubmitted, role)
	}
	return nil
}

func (e *Engine) socialShare(c *model.Connection, v Variant, role model.Role, share bool, out *Outcome, now time.Time) error {
	field := &c.BuyerSocialShare
	if role == model.RoleSeller {
		field = &c.SellerSocialShare
	}
	if *field != nil {
		return ErrAlreadySubmitted
	}
	*field = &share
	out.notify(EventSocialSubmitted, role)
	settle(c, v, out, now)
	return nil
}

func (e *Engine) agree(c *model.Connection, v Variant, role model.Role, out *Outcome, now time.Time) error {
	field := &c.BuyerAgreed
	if role == model.RoleSeller {
		field = &c.SellerAgreed
	}
	if *field {
		return ErrAlreadySubmitted
	}
	*field = true
	out.notify(EventAgreementAccepted, role)
	if c.BuyerAgreed && c.SellerAgreed {
		enterStage(c, v, model.StageChatOpen, now)
		out.notifyBoth(EventMatchConfirmed, role)
	}
	return nil
}

func (e *Engine) end(c *model.Connection, v Variant, role model.Role, reason string, out *Outcome, now time.Time) {
	typ := EventEnded
	if role == model.RoleBuyer && c.Stage == model.StagePendingSeller {
		typ = EventCancelled
	}
	t := now
	c.StageBeforeEnded = c.Stage
	c.EndedBy = role
	c.EndedAt = &t
	c.EndReason = strings.TrimSpace(reason)
	enterStage(c, v, model.StageEnded, now)
	out.Lock = LockRelease
	out.notify(typ, role)
}

func (e *Engine) undo(c *model.Connection, v Variant, role model.Role, out *Outcome, now time.Time) {
	restored := c.StageBeforeEnded
	enterStage(c, v, restored, now)
	c.EndedBy = model.RoleNone
	c.EndedAt = nil
	c.StageBeforeEnded = ""
	c.EndReason = ""
	out.Lock = LockAcquire
	out.notify(EventRestored, role)
}

func (e *Engine) rate(c *model.Connection, role model.Role, score int, out *Outcome) error {
	if score < 1 || score > 5 {
		return fmt.Errorf("%w: score must be between 1 and 5", ErrValidation)
	}
	field := &c.BuyerRating
	if role == model.RoleSeller {
		field = &c.SellerRating
	}
	if *field != nil {
		return ErrAlreadySubmitted
	}
	*field = &score
	out.notify(EventRated, role)
	return nil
}

// settle advances through stages whose gate is already satisfied, e.g.
// bonding when the buyer answered up front.
func settle(c *model.Connection, v Variant, out *Outcome, now time.Time) {
	for {
		switch {
		case c.Stage == model.StageBuyerBondingV2 && c.BuyerBondingSubmittedAt != nil:
			enterStage(c, v, model.StageBonding, now)
		case c.Stage == model.StageBonding && BondingComplete(c):
			enterStage(c, v, model.StagePreview, now)
			out.notifyBoth(EventBondingCompleted, model.RoleNone)
		case c.Stage == model.StageSocial && SocialReady(c.BuyerSocialShare, c.SellerSocialShare):
			enterStage(c, v, model.StageAgreement, now)
		default:
			return
		}
	}
}

func fixQuestions(c *model.Connection, v Variant, ids []uint64) error {
	if len(ids) != v.QuestionCount {
		return fmt.Errorf("%w: expected %d bonding questions, got %d", ErrValidation, v.QuestionCount, len(ids))
	}
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			return fmt.Errorf("%w: invalid question id", ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate question id %d", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	c.BondingQuestionIDs = append([]uint64(nil), ids...)
	return nil
}

// MaxAnswerLength bounds one bonding answer in characters.  It matches the
// width of connection_bonding_answers.answer.
const MaxAnswerLength = 1000

// validateAnswers requires exactly one non-empty answer per fixed question.
func validateAnswers(questionIDs []uint64, answers map[uint64]string) (map[uint64]string, error) {
	if len(questionIDs) == 0 {
		return nil, fmt.Errorf("%w: no bonding questions fixed for this connection", ErrValidation)
	}
	if len(answers) != len(questionIDs) {
		return nil, fmt.Errorf("%w: expected %d answers, got %d", ErrValidation, len(questionIDs), len(answers))
	}
	clean := make(map[uint64]string, len(answers))
	for _, qid := range questionIDs {
		text, ok := answers[qid]
		if !ok {
			return nil, fmt.Errorf("%w: missing answer for question %d", ErrValidation, qid)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("%w: answer for question %d is empty", ErrValidation, qid)
		}
		if utf8.RuneCountInString(text) > MaxAnswerLength {
			return nil, fmt.Errorf("%w: answer for question %d exceeds %d characters", ErrValidation, qid, MaxAnswerLength)
		}
		clean[qid] = text
	}
	return clean, nil
}

func toAnswers(role model.Role, order []uint64, answers map[uint64]string, now time.Time) []model.BondingAnswer {
	out := make([]model.BondingAnswer, 0, len(order))
	for _, qid := range order {
		out = append(out, model.BondingAnswer{Role: role, QuestionID: qid, Answer: answers[qid], CreatedAt: now})
	}
	return out
}

// notify queues an event for the counterpart of actor.
func (o *Outcome) notify(t EventType, actor model.Role) {
	o.Events = append(o.Events, Event{Type: t, Actor: actor, Recipient: actor.Other()})
}

// notifyBoth queues an event for both participants.
func (o *Outcome) notifyBoth(t EventType, actor model.Role) {
	o.Events = append(o.Events,
		Event{Type: t, Actor: actor, Recipient: model.RoleBuyer},
		Event{Type: t, Actor: actor, Recipient: model.RoleSeller},
	)
}

// finalize stamps every queued event with the connection's identity and
// resulting stage.
func finalize(o *Outcome, now time.Time) {
	for i := range o.Events {
		ev := &o.Events[i]
		ev.ConnectionID = o.Conn.ID
		ev.ListingID = o.Conn.ListingID
		ev.Kind = o.Conn.Kind
		ev.RecipientID = o.Conn.UserOf(ev.Recipient)
		ev.Stage = o.Conn.Stage
		ev.At = now
	}
}

// Bind sets the connection id on the outcome and its events once the
// record has been inserted.
func (o *Outcome) Bind(id uint64) {
	o.Conn.ID = id
	for i := range o.Answers {
		o.Answers[i].ConnectionID = id
	}
	for i := range o.Events {
		o.Events[i].ConnectionID = id
	}
}
