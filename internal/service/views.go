package service

import (
	"time"

	"github.com/armyboard/connection-service/internal/connection"
	"github.com/armyboard/connection-service/internal/model"
)

// PartyStatus shows which gates a participant has passed, without
// revealing the values of undecided counterpart answers.
type PartyStatus struct {
	UserID           uint64 `json:"user_id"`
	BondingSubmitted bool   `json:"bonding_submitted"`
	ComfortDecided   bool   `json:"comfort_decided"`
	SocialDecided    bool   `json:"social_decided"`
	Agreed           bool   `json:"agreed"`
	Rated            bool   `json:"rated"`
}

// ConnectionView is a connection as seen by one of its participants.
type ConnectionView struct {
	ID                 uint64      `json:"id"`
	Kind               model.Kind  `json:"kind"`
	ListingID          uint64      `json:"listing_id"`
	Stage              model.Stage `json:"stage"`
	StageStartedAt     time.Time   `json:"stage_started_at"`
	StageExpiresAt     *time.Time  `json:"stage_expires_at,omitempty"`
	Role               model.Role  `json:"role"`
	WaitingOnOther     bool        `json:"waiting_on_other"`
	SocialsVisible     bool        `json:"socials_visible"`
	SharePreference    *bool       `json:"share_preference,omitempty"`
	BondingQuestionIDs []uint64    `json:"bonding_question_ids,omitempty"`
	Buyer              PartyStatus `json:"buyer"`
	Seller             PartyStatus `json:"seller"`
	EndedBy            model.Role  `json:"ended_by,omitempty"`
	EndedAt            *time.Time  `json:"ended_at,omitempty"`
	CanUndoUntil       *time.Time  `json:"can_undo_until,omitempty"`
}

func newView(c model.Connection, role model.Role, v connection.Variant) ConnectionView {
	view := ConnectionView{
		ID:                 c.ID,
		Kind:               c.Kind,
		ListingID:          c.ListingID,
		Stage:              c.Stage,
		StageStartedAt:     c.StageStartedAt,
		StageExpiresAt:     c.StageExpiresAt,
		Role:               role,
		WaitingOnOther:     connection.WaitingOnOther(&c, role),
		SocialsVisible:     connection.SocialsVisible(&c, role),
		BondingQuestionIDs: c.BondingQuestionIDs,
		Buyer: PartyStatus{
			UserID:           c.BuyerID,
			BondingSubmitted: c.BuyerBondingSubmittedAt != nil,
			ComfortDecided:   c.BuyerComfort != nil,
			SocialDecided:    c.BuyerSocialShare != nil,
			Agreed:           c.BuyerAgreed,
			Rated:            c.BuyerRating != nil,
		},
		Seller: PartyStatus{
			UserID:           c.SellerID,
			BondingSubmitted: c.SellerBondingSubmittedAt != nil,
			ComfortDecided:   c.SellerComfort != nil,
			SocialDecided:    c.SellerSocialShare != nil,
			Agreed:           c.SellerAgreed,
			Rated:            c.SellerRating != nil,
		},
		EndedBy: c.EndedBy,
		EndedAt: c.EndedAt,
	}
	switch role {
	case model.RoleBuyer:
		view.SharePreference = c.BuyerSharePreference
	case model.RoleSeller:
		view.SharePreference = c.SellerSharePreference
	}
	if v.UndoWindow > 0 && c.Stage == model.StageEnded && c.EndedAt != nil && c.EndedBy == role {
		until := c.EndedAt.Add(v.UndoWindow)
		view.CanUndoUntil = &until
	}
	return view
}

// PreviewListing is the listing part of a preview.
type PreviewListing struct {
	ID     uint64     `json:"id"`
	Kind   model.Kind `json:"kind"`
	Title  string     `json:"title"`
	Status string     `json:"status"`
}

// PreviewAnswer pairs a bonding prompt with one party's answer.
type PreviewAnswer struct {
	QuestionID uint64 `json:"question_id"`
	Prompt     string `json:"prompt"`
	Answer     string `json:"answer"`
}

// PreviewParty is a participant's profile and bonding snapshot.  Socials
// are only filled when the requester may see them.
type PreviewParty struct {
	UserID      uint64          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Bias        string          `json:"bias,omitempty"`
	ArmySince   *int            `json:"army_since,omitempty"`
	Bonding     []PreviewAnswer `json:"bonding,omitempty"`
	Instagram   string          `json:"instagram,omitempty"`
	Twitter     string          `json:"twitter,omitempty"`
}

// Preview is the getPreview payload.
type Preview struct {
	Connection ConnectionView `json:"connection"`
	Listing    PreviewListing `json:"listing"`
	Buyer      PreviewParty   `json:"buyer"`
	Seller     PreviewParty   `json:"seller"`
}
