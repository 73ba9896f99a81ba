package connection

import "github.com/armyboard/connection-service/internal/model"

// ComfortOutcome is the joint result of the two comfort decisions.
type ComfortOutcome int

const (
	ComfortPending ComfortOutcome = iota
	ComfortAdvance
	ComfortEnd
)

// BondingComplete is true once both parties submitted their answers.
func BondingComplete(c *model.Connection) bool {
	return c.BuyerBondingSubmittedAt != nil && c.SellerBondingSubmittedAt != nil
}

// Comfort combines the two comfort decisions.  A single false decides the
// outcome without waiting for the other party; only true and true advance.
func Comfort(buyer, seller *bool) ComfortOutcome {
	if (buyer != nil && !*buyer) || (seller != nil && !*seller) {
		return ComfortEnd
	}
	if buyer != nil && seller != nil {
		return ComfortAdvance
	}
	return ComfortPending
}

// SocialReady is true once both parties decided, whatever they decided.
func SocialReady(buyer, seller *bool) bool {
	return buyer != nil && seller != nil
}

// BothShare is true only when both parties chose to share socials.  It is
// independent of SocialReady.
func BothShare(buyer, seller *bool) bool {
	return buyer != nil && seller != nil && *buyer && *seller
}
