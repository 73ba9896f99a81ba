package model

import (
	"fmt"
	"time"
)

// Kind distinguishes ticket connections from merch connections.  Both
// share one table and one state machine; the kind selects the variant
// rules (extra stages, deadlines, undo, ratings).
type Kind string

const (
	KindTicket Kind = "ticket"
	KindMerch  Kind = "merch"
)

// ParseKind validates a raw kind string as stored in the database or sent
// by clients.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindTicket, KindMerch:
		return k, nil
	}
	return "", fmt.Errorf("unknown listing kind %q", s)
}

// Stage is the closed set of connection stages.  The wire format is the
// plain string value.
type Stage string

const (
	StagePendingSeller  Stage = "pending_seller"
	StageBuyerBondingV2 Stage = "buyer_bonding_v2"
	StageBonding        Stage = "bonding"
	StagePreview        Stage = "preview"
	StageSocial         Stage = "social"
	StageAgreement      Stage = "agreement"
	StageChatOpen       Stage = "chat_open"
	StageEnded          Stage = "ended"
	StageExpired        Stage = "expired"
	StageDeclined       Stage = "declined"
)

var allStages = map[Stage]bool{
	StagePendingSeller:  true,
	StageBuyerBondingV2: true,
	StageBonding:        true,
	StagePreview:        true,
	StageSocial:         true,
	StageAgreement:      true,
	StageChatOpen:       true,
	StageEnded:          true,
	StageExpired:        true,
	StageDeclined:       true,
}

// ParseStage converts a stored stage string into a Stage.  Unknown values
// are rejected so a bad row never reaches the state machine.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !allStages[st] {
		return "", fmt.Errorf("unknown connection stage %q", s)
	}
	return st, nil
}

// Terminal reports whether no further transitions leave this stage
// (apart from the merch undo path out of ended).
func (s Stage) Terminal() bool {
	return s == StageEnded || s == StageExpired || s == StageDeclined
}

// Role is the part an actor plays in one connection.
type Role string

const (
	RoleNone   Role = ""
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Other returns the counterpart role.  RoleNone has no counterpart.
func (r Role) Other() Role {
	switch r {
	case RoleBuyer:
		return RoleSeller
	case RoleSeller:
		return RoleBuyer
	}
	return RoleNone
}

// Connection is one buyer–listing pairing attempt as stored in the
// `connections` table.
//
// Fields:
//  ID                 – primary key identifier.
//  Kind               – ticket or merch; fixed at creation.
//  ListingID          – listing being connected to; immutable.
//  BuyerID, SellerID  – the two participants; immutable.
//  Stage              – current stage.
//  StageStartedAt     – when the current stage was entered.
//  StageExpiresAt     – deadline of the current stage; nil when the stage
//                       has none (chat_open and terminal stages).
//  BondingQuestionIDs – 2 or 3 question ids, fixed once chosen.
//  *BondingSubmittedAt, *Comfort, *SocialShare, *Agreed, *Rating
//                     – per-party gate fields; nil means undecided.
//  *SharePreference   – share choice given at connect (buyer) or accept
//                       (seller); informational, never decides the gate.
//  EndedBy, EndedAt, StageBeforeEnded, EndReason
//                     – set only by an explicit end; used by undo.
//  Version            – incremented on every write.
type Connection struct {
	ID                 uint64
	Kind               Kind
	ListingID          uint64
	BuyerID            uint64
	SellerID           uint64
	Stage              Stage
	StageStartedAt     time.Time
	StageExpiresAt     *time.Time
	BondingQuestionIDs []uint64

	BuyerBondingSubmittedAt  *time.Time
	SellerBondingSubmittedAt *time.Time
	BuyerComfort             *bool
	SellerComfort            *bool
	BuyerSocialShare         *bool
	SellerSocialShare        *bool
	BuyerSharePreference     *bool
	SellerSharePreference    *bool
	BuyerAgreed              bool
	SellerAgreed             bool
	BuyerRating              *int
	SellerRating             *int

	EndedBy          Role
	EndedAt          *time.Time
	StageBeforeEnded Stage
	EndReason        string

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   uint64
}

// RoleOf returns the role of userID in this connection, or RoleNone when
// the user is not a participant.
func (c *Connection) RoleOf(userID uint64) Role {
	switch {
	case userID == 0:
		return RoleNone
	case userID == c.BuyerID:
		return RoleBuyer
	case userID == c.SellerID:
		return RoleSeller
	}
	return RoleNone
}

// UserOf returns the user id playing role r.
func (c *Connection) UserOf(r Role) uint64 {
	switch r {
	case RoleBuyer:
		return c.BuyerID
	case RoleSeller:
		return c.SellerID
	}
	return 0
}

// Clone returns a deep copy so callers can mutate the result without
// touching the original's pointer fields.
func (c Connection) Clone() Connection {
	out := c
	out.BondingQuestionIDs = append([]uint64(nil), c.BondingQuestionIDs...)
	out.StageExpiresAt = cloneTime(c.StageExpiresAt)
	out.BuyerBondingSubmittedAt = cloneTime(c.BuyerBondingSubmittedAt)
	out.SellerBondingSubmittedAt = cloneTime(c.SellerBondingSubmittedAt)
	out.EndedAt = cloneTime(c.EndedAt)
	out.BuyerComfort = cloneBool(c.BuyerComfort)
	out.SellerComfort = cloneBool(c.SellerComfort)
	out.BuyerSocialShare = cloneBool(c.BuyerSocialShare)
	out.SellerSocialShare = cloneBool(c.SellerSocialShare)
	out.BuyerSharePreference = cloneBool(c.BuyerSharePreference)
	out.SellerSharePreference = cloneBool(c.SellerSharePreference)
	out.BuyerRating = cloneInt(c.BuyerRating)
	out.SellerRating = cloneInt(c.SellerRating)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
