// Package service runs connection actions against the store: one action
// is one transaction that loads the row for update, applies the stage
// engine, persists the result and the listing lock change, and publishes
// the resulting events after commit.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/armyboard/connection-service/internal/connection"
	"github.com/armyboard/connection-service/internal/model"
)

// ConnectionService implements the named connection procedures.
type ConnectionService struct {
	store  Store
	engine *connection.Engine
	pub    Publisher
	clock  connection.Clock
	log    *zap.Logger
}

// Option customizes a ConnectionService.
type Option func(*ConnectionService)

// WithClock replaces the system clock.
func WithClock(c connection.Clock) Option { return func(s *ConnectionService) { s.clock = c } }

// WithPublisher sets the event publisher.  Without one events are dropped.
func WithPublisher(p Publisher) Option { return func(s *ConnectionService) { s.pub = p } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *ConnectionService) { s.log = l } }

// NewConnectionService builds the service.  store and engine must be non-nil.
func NewConnectionService(store Store, engine *connection.Engine, opts ...Option) *ConnectionService {
	if store == nil || engine == nil {
		panic("nil dependency passed to NewConnectionService")
	}
	s := &ConnectionService{store: store, engine: engine, clock: connection.SystemClock{}, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ConnectRequest is the buyer's connect call.
type ConnectRequest struct {
	ListingID       uint64
	WantSocialShare *bool
	QuestionIDs     []uint64
	Answers         map[uint64]string
}

// Connect creates a connection in pending_seller and locks the listing.
func (s *ConnectionService) Connect(ctx context.Context, actorID uint64, req ConnectRequest) (uint64, error) {
	if req.ListingID == 0 {
		return 0, fmt.Errorf("%w: listing_id is required", connection.ErrValidation)
	}
	if len(req.QuestionIDs) > 0 {
		if err := s.checkQuestions(ctx, req.QuestionIDs); err != nil {
			return 0, err
		}
	}

	var out connection.Outcome
	err := s.store.InTx(ctx, func(tx Tx) error {
		listing, err := tx.ListingForUpdate(ctx, req.ListingID)
		if err != nil {
			return err
		}
		out, err = s.engine.Create(connection.NewConnectionRequest{
			Listing:         listing,
			BuyerID:         actorID,
			WantSocialShare: req.WantSocialShare,
			QuestionIDs:     req.QuestionIDs,
			Answers:         req.Answers,
		}, s.clock.Now())
		if err != nil {
			return err
		}
		if err := tx.InsertConnection(ctx, &out.Conn); err != nil {
			return err
		}
		out.Bind(out.Conn.ID)
		if err := tx.InsertAnswers(ctx, out.Answers); err != nil {
			return err
		}
		return tx.LockListing(ctx, listing.ID, out.Conn.ID)
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("connection created",
		zap.Uint64("connection_id", out.Conn.ID),
		zap.Uint64("listing_id", out.Conn.ListingID),
		zap.String("kind", string(out.Conn.Kind)))
	s.publish(ctx, out.Events)
	return out.Conn.ID, nil
}

func (s *ConnectionService) checkQuestions(ctx context.Context, ids []uint64) error {
	qs, err := s.store.Questions(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if q, ok := qs[id]; !ok || !q.Active {
			return fmt.Errorf("%w: unknown bonding question %d", connection.ErrValidation, id)
		}
	}
	return nil
}

// SellerRespond accepts or declines a pending connection.  On accept the
// bonding questions are drawn from the question bank unless the buyer
// already fixed them.
func (s *ConnectionService) SellerRespond(ctx context.Context, actorID, id uint64, accept bool, sellerSocialShare *bool) (ConnectionView, error) {
	cmd := connection.Command{Action: connection.ActionRespond, ActorID: actorID, Accept: accept, SocialShare: sellerSocialShare}
	if accept {
		c, err := s.store.Connection(ctx, id)
		if err != nil {
			return ConnectionView{}, err
		}
		if len(c.BondingQuestionIDs) == 0 && c.RoleOf(actorID) == model.RoleSeller {
			v, err := s.engine.Variant(c.Kind)
			if err != nil {
				return ConnectionView{}, err
			}
			ids, err := s.store.PickQuestions(ctx, v.QuestionCount)
			if err != nil {
				return ConnectionView{}, err
			}
			if len(ids) < v.QuestionCount {
				return ConnectionView{}, fmt.Errorf("question bank has %d active questions, need %d", len(ids), v.QuestionCount)
			}
			cmd.QuestionIDs = ids
		}
	}
	return s.act(ctx, id, cmd)
}

// SubmitBondingAnswers records the actor's bonding answers.
func (s *ConnectionService) SubmitBondingAnswers(ctx context.Context, actorID, id uint64, answers map[uint64]string) (ConnectionView, error) {
	return s.act(ctx, id, connection.Command{Action: connection.ActionSubmitBonding, ActorID: actorID, Answers: answers})
}

// SetComfortDecision records the actor's comfort decision.
func (s *ConnectionService) SetComfortDecision(ctx context.Context, actorID, id uint64, comfort bool) (ConnectionView, error) {
	return s.act(ctx, id, connection.Command{Action: connection.ActionComfort, ActorID: actorID, Decision: comfort})
}

// SetSocialShareDecision records the actor's social-share decision.
func (s *ConnectionService) SetSocialShareDecision(ctx context.Context, actorID, id uint64, share bool) (ConnectionView, error) {
	return s.act(ctx, id, connection.Command{Action: connection.ActionSocialShare, ActorID: actorID, Decision: share})
}

// AcceptAgreement records the actor's agreement.
func (s *ConnectionService) AcceptAgreement(ctx context.Context, actorID, id uint64) (ConnectionView, error) {
	return s.act(ctx, id, connection.Command{Action: connection.ActionAgree, ActorID: actorID})
}

// EndConnection ends a live connection and releases the listing.
func (s *ConnectionService) EndConnection(ctx context.Context, actorID, id uint64, reason string) (ConnectionView, error) {
	return s.act(ctx, id, connection.Command{Action: connection.ActionEnd, ActorID: actorID, Reason: reason})
}

// UndoEnd restores a merch connection ended by the actor within the undo
// window.
func (s *ConnectionService) UndoEnd(ctx context.Context, actorID, id uint64) (ConnectionView, error) {
	return s.act(ctx, id, connection.Command{Action: connection.ActionUndo, ActorID: actorID})
}

// RateConnection records the actor's rating of a merch match.
func (s *ConnectionService) RateConnection(ctx context.Context, actorID, id uint64, score int) (ConnectionView, error) {
	return s.act(ctx, id, connection.Command{Action: connection.ActionRate, ActorID: actorID, Score: score})
}

// act runs one command in one transaction.  An expired stage is persisted
// and committed before ErrConflictExpired is returned, so the caller can
// refresh into the terminal state.
func (s *ConnectionService) act(ctx context.Context, id uint64, cmd connection.Command) (ConnectionView, error) {
	var (
		out    connection.Outcome
		actErr error
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		c, err := tx.ConnectionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out, actErr = s.engine.Apply(c, cmd, s.clock.Now())
		if actErr != nil && !errors.Is(actErr, connection.ErrConflictExpired) {
			return actErr
		}
		return s.persist(ctx, tx, &out)
	})
	if err != nil {
		if !isClientError(err) {
			s.log.Error("connection action failed",
				zap.Uint64("connection_id", id),
				zap.String("action", string(cmd.Action)),
				zap.Error(err))
		}
		return ConnectionView{}, err
	}
	s.publish(ctx, out.Events)

	role := out.Conn.RoleOf(cmd.ActorID)
	v, _ := s.engine.Variant(out.Conn.Kind)
	view := newView(out.Conn, role, v)
	if actErr != nil {
		s.log.Info("connection expired on action",
			zap.Uint64("connection_id", id),
			zap.String("action", string(cmd.Action)))
		return view, actErr
	}
	return view, nil
}

// persist writes the outcome: the connection row, any new answers and the
// listing lock change.
func (s *ConnectionService) persist(ctx context.Context, tx Tx, out *connection.Outcome) error {
	if err := tx.UpdateConnection(ctx, &out.Conn); err != nil {
		return err
	}
	for i := range out.Answers {
		out.Answers[i].ConnectionID = out.Conn.ID
	}
	if err := tx.InsertAnswers(ctx, out.Answers); err != nil {
		return err
	}
	switch out.Lock {
	case connection.LockRelease:
		return tx.UnlockListing(ctx, out.Conn.ListingID, out.Conn.ID)
	case connection.LockAcquire:
		return tx.LockListing(ctx, out.Conn.ListingID, out.Conn.ID)
	}
	return nil
}

// Get returns the actor's view of a connection, expiring it first when
// its deadline lapsed.
func (s *ConnectionService) Get(ctx context.Context, actorID, id uint64) (ConnectionView, error) {
	c, role, err := s.load(ctx, actorID, id)
	if err != nil {
		return ConnectionView{}, err
	}
	v, _ := s.engine.Variant(c.Kind)
	return newView(c, role, v), nil
}

func (s *ConnectionService) load(ctx context.Context, actorID, id uint64) (model.Connection, model.Role, error) {
	c, err := s.store.Connection(ctx, id)
	if err != nil {
		return c, model.RoleNone, err
	}
	v, err := s.engine.Variant(c.Kind)
	if err != nil {
		return c, model.RoleNone, err
	}
	role, err := connection.Authorize(v, &c, actorID, connection.ActionView, s.clock.Now())
	if err != nil {
		return c, role, err
	}
	if connection.Expired(&c, s.clock.Now()) {
		if c, err = s.expire(ctx, id); err != nil {
			return c, role, err
		}
	}
	return c, role, nil
}

// ListMine returns the actor's connections, newest first, with lapsed
// ones expired on the way out.
func (s *ConnectionService) ListMine(ctx context.Context, actorID uint64, limit int) ([]ConnectionView, error) {
	conns, err := s.store.ConnectionsByUser(ctx, actorID, limit)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	views := make([]ConnectionView, 0, len(conns))
	for _, c := range conns {
		if connection.Expired(&c, now) {
			if c, err = s.expire(ctx, c.ID); err != nil {
				return nil, err
			}
		}
		v, _ := s.engine.Variant(c.Kind)
		views = append(views, newView(c, c.RoleOf(actorID), v))
	}
	return views, nil
}

// GetPreview assembles the listing and both parties' profile and bonding
// snapshots.  The counterpart's answers appear once both parties have
// submitted; socials appear only when SocialsVisible holds.
func (s *ConnectionService) GetPreview(ctx context.Context, actorID, id uint64) (Preview, error) {
	c, role, err := s.load(ctx, actorID, id)
	if err != nil {
		return Preview{}, err
	}
	listing, err := s.store.Listing(ctx, c.ListingID)
	if err != nil {
		return Preview{}, err
	}
	profiles, err := s.store.Profiles(ctx, c.BuyerID, c.SellerID)
	if err != nil {
		return Preview{}, err
	}
	answers, err := s.store.Answers(ctx, c.ID)
	if err != nil {
		return Preview{}, err
	}
	questions, err := s.store.Questions(ctx, c.BondingQuestionIDs)
	if err != nil {
		return Preview{}, err
	}

	v, _ := s.engine.Variant(c.Kind)
	showSocials := connection.SocialsVisible(&c, role)
	showOther := connection.BondingComplete(&c)
	party := func(r model.Role) PreviewParty {
		uid := c.UserOf(r)
		p := profiles[uid]
		pp := PreviewParty{UserID: uid, DisplayName: p.DisplayName, Bias: p.Bias, ArmySince: p.ArmySince}
		if r == role || showOther {
			for _, a := range answers {
				if a.Role == r {
					pp.Bonding = append(pp.Bonding, PreviewAnswer{QuestionID: a.QuestionID, Prompt: questions[a.QuestionID].Prompt, Answer: a.Answer})
				}
			}
		}
		if showSocials {
			pp.Instagram = p.Instagram
			pp.Twitter = p.Twitter
		}
		return pp
	}
	return Preview{
		Connection: newView(c, role, v),
		Listing:    PreviewListing{ID: listing.ID, Kind: listing.Kind, Title: listing.Title, Status: listing.Status},
		Buyer:      party(model.RoleBuyer),
		Seller:     party(model.RoleSeller),
	}, nil
}

// ExpireDue expires up to limit connections whose deadline lapsed and
// returns how many it moved.  Failures on single rows are collected and
// do not stop the batch.
func (s *ConnectionService) ExpireDue(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.DueForExpiry(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs []error
	)
	for _, id := range ids {
		c, err := s.expire(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire connection %d: %w", id, err))
			continue
		}
		if c.Stage == model.StageExpired {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// expire moves one connection to expired if it is still due, under the
// row lock, and returns its current state.
func (s *ConnectionService) expire(ctx context.Context, id uint64) (model.Connection, error) {
	var (
		out     connection.Outcome
		changed bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		c, err := tx.ConnectionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out, changed = s.engine.Expire(c, s.clock.Now())
		if !changed {
			return nil
		}
		return s.persist(ctx, tx, &out)
	})
	if err != nil {
		return model.Connection{}, err
	}
	if changed {
		s.log.Info("connection expired", zap.Uint64("connection_id", id), zap.Uint64("listing_id", out.Conn.ListingID))
		s.publish(ctx, out.Events)
	}
	return out.Conn, nil
}

func (s *ConnectionService) publish(ctx context.Context, events []connection.Event) {
	if s.pub == nil || len(events) == 0 {
		return
	}
	if err := s.pub.Publish(ctx, events); err != nil {
		s.log.Warn("publish connection events failed", zap.Int("events", len(events)), zap.Error(err))
	}
}

// isClientError reports whether err is one of the expected outcomes of a
// bad or late request rather than an infrastructure failure.
func isClientError(err error) bool {
	for _, target := range []error{
		connection.ErrNotAuthorized, connection.ErrStageClosed, connection.ErrValidation,
		connection.ErrAlreadySubmitted, connection.ErrNotFound, connection.ErrListingUnavailable,
		connection.ErrConcurrentUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
