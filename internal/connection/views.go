package connection

import "github.com/armyboard/connection-service/internal/model"

// SocialsVisible reports whether the requesting party may see contact
// handles: both parties chose to share and the requester has agreed.
func SocialsVisible(c *model.Connection, role model.Role) bool {
	if !BothShare(c.BuyerSocialShare, c.SellerSocialShare) {
		return false
	}
	switch role {
	case model.RoleBuyer:
		return c.BuyerAgreed
	case model.RoleSeller:
		return c.SellerAgreed
	}
	return false
}

// WaitingOnOther reports whether the requesting party has done their part
// of the current stage and the counterpart has not.
func WaitingOnOther(c *model.Connection, role model.Role) bool {
	if role == model.RoleNone {
		return false
	}
	switch c.Stage {
	case model.StagePendingSeller:
		return role == model.RoleBuyer
	case model.StageBuyerBondingV2:
		return role == model.RoleSeller
	case model.StageBonding:
		return pick(role, c.BuyerBondingSubmittedAt != nil, c.SellerBondingSubmittedAt != nil)
	case model.StagePreview:
		return pick(role, c.BuyerComfort != nil, c.SellerComfort != nil)
	case model.StageSocial:
		return pick(role, c.BuyerSocialShare != nil, c.SellerSocialShare != nil)
	case model.StageAgreement:
		return pick(role, c.BuyerAgreed, c.SellerAgreed)
	}
	return false
}

func pick(role model.Role, buyerDone, sellerDone bool) bool {
	if role == model.RoleBuyer {
		return buyerDone && !sellerDone
	}
	return sellerDone && !buyerDone
}
