package handler

import (
	"context"
	"sync"

	"github.com/armyboard/connection-service/internal/model"
	"github.com/armyboard/connection-service/internal/service"
)

// fakeService records the last call and answers with err or a canned view.
type fakeService struct {
	mu      sync.Mutex
	err     error
	calls   []string
	actor   uint64
	id      uint64
	answers map[uint64]string
	flag    *bool
	share   *bool
	score   int
	reason  string
	connect service.ConnectRequest
	limit   int
	expire  int
}

func (f *fakeService) record(name string, actor, id uint64) service.ConnectionView {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.actor, f.id = actor, id
	return service.ConnectionView{ID: id, Stage: model.StageBonding, Role: model.RoleBuyer}
}

func (f *fakeService) Connect(ctx context.Context, actorID uint64, req service.ConnectRequest) (uint64, error) {
	f.record("Connect", actorID, 0)
	f.connect = req
	return 77, f.err
}

func (f *fakeService) SellerRespond(ctx context.Context, actorID, id uint64, accept bool, share *bool) (service.ConnectionView, error) {
	v := f.record("SellerRespond", actorID, id)
	f.flag, f.share = &accept, share
	return v, f.err
}

func (f *fakeService) SubmitBondingAnswers(ctx context.Context, actorID, id uint64, answers map[uint64]string) (service.ConnectionView, error) {
	v := f.record("SubmitBondingAnswers", actorID, id)
	f.answers = answers
	return v, f.err
}

func (f *fakeService) SetComfortDecision(ctx context.Context, actorID, id uint64, comfort bool) (service.ConnectionView, error) {
	v := f.record("SetComfortDecision", actorID, id)
	f.flag = &comfort
	return v, f.err
}

func (f *fakeService) SetSocialShareDecision(ctx context.Context, actorID, id uint64, share bool) (service.ConnectionView, error) {
	v := f.record("SetSocialShareDecision", actorID, id)
	f.flag = &share
	return v, f.err
}

func (f *fakeService) AcceptAgreement(ctx context.Context, actorID, id uint64) (service.ConnectionView, error) {
	return f.record("AcceptAgreement", actorID, id), f.err
}

func (f *fakeService) EndConnection(ctx context.Context, actorID, id uint64, reason string) (service.ConnectionView, error) {
	v := f.record("EndConnection", actorID, id)
	f.reason = reason
	return v, f.err
}

func (f *fakeService) UndoEnd(ctx context.Context, actorID, id uint64) (service.ConnectionView, error) {
	return f.record("UndoEnd", actorID, id), f.err
}

func (f *fakeService) RateConnection(ctx context.Context, actorID, id uint64, score int) (service.ConnectionView, error) {
	v := f.record("RateConnection", actorID, id)
	f.score = score
	return v, f.err
}

func (f *fakeService) GetPreview(ctx context.Context, actorID, id uint64) (service.Preview, error) {
	v := f.record("GetPreview", actorID, id)
	return service.Preview{Connection: v, Listing: service.PreviewListing{ID: 3, Title: "Army bomb v4"}}, f.err
}

func (f *fakeService) Get(ctx context.Context, actorID, id uint64) (service.ConnectionView, error) {
	return f.record("Get", actorID, id), f.err
}

func (f *fakeService) ListMine(ctx context.Context, actorID uint64, limit int) ([]service.ConnectionView, error) {
	f.record("ListMine", actorID, 0)
	f.limit = limit
	return nil, f.err
}

func (f *fakeService) ExpireDue(ctx context.Context, limit int) (int, error) {
	f.record("ExpireDue", 0, 0)
	f.limit = limit
	return f.expire, f.err
}
