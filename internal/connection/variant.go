package connection

import (
	"fmt"
	"time"

	"github.com/armyboard/connection-service/internal/model"
)

// DefaultStageTimeout is the deadline every stage gets unless a variant
// overrides it.
const DefaultStageTimeout = 24 * time.Hour

// Variant describes how one listing kind walks the shared stage graph.
// Ticket and merch connections differ only in the values below.
type Variant struct {
	Kind model.Kind

	// AcceptStage is entered when the seller accepts.
	AcceptStage model.Stage

	// QuestionCount is how many bonding questions each connection fixes.
	QuestionCount int

	// StageTimeout applies to every stage with a deadline; StageTimeouts
	// overrides it per stage.
	StageTimeout  time.Duration
	StageTimeouts map[model.Stage]time.Duration

	// UndoWindow is how long the ending party may restore an ended
	// connection.  Zero disables undo.
	UndoWindow time.Duration

	// Ratings enables post-match ratings.
	Ratings bool
}

// TicketVariant: seller acceptance goes straight into bonding.
func TicketVariant() Variant {
	return Variant{
		Kind:          model.KindTicket,
		AcceptStage:   model.StageBonding,
		QuestionCount: 3,
		StageTimeout:  DefaultStageTimeout,
	}
}

// MerchVariant inserts a shorter buyer-only bonding round after
// acceptance, allows undoing an end for an hour and enables ratings.
func MerchVariant() Variant {
	return Variant{
		Kind:          model.KindMerch,
		AcceptStage:   model.StageBuyerBondingV2,
		QuestionCount: 2,
		StageTimeout:  DefaultStageTimeout,
		StageTimeouts: map[model.Stage]time.Duration{
			model.StageBuyerBondingV2: 12 * time.Hour,
		},
		UndoWindow: time.Hour,
		Ratings:    true,
	}
}

// Timeout returns the deadline length for stage s and whether the stage
// has a deadline at all.  chat_open and terminal stages never expire.
func (v Variant) Timeout(s model.Stage) (time.Duration, bool) {
	if s == model.StageChatOpen || s.Terminal() {
		return 0, false
	}
	if d, ok := v.StageTimeouts[s]; ok && d > 0 {
		return d, true
	}
	if v.StageTimeout > 0 {
		return v.StageTimeout, true
	}
	return DefaultStageTimeout, true
}

// Variants maps each kind to its rules.
type Variants map[model.Kind]Variant

// DefaultVariants returns the stock ticket and merch rules.
func DefaultVariants() Variants {
	return Variants{
		model.KindTicket: TicketVariant(),
		model.KindMerch:  MerchVariant(),
	}
}

// For looks up the rules for kind k.
func (vs Variants) For(k model.Kind) (Variant, error) {
	v, ok := vs[k]
	if !ok {
		return Variant{}, fmt.Errorf("no stage rules for kind %q", k)
	}
	return v, nil
}
