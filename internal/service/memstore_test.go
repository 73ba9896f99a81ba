package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/armyboard/connection-service/internal/connection"
	"github.com/armyboard/connection-service/internal/model"
)

// memStore is an in-memory Store.  InTx holds the store mutex for the whole
// transaction, which gives the same serialization as row locks, and
// restores a snapshot when fn fails.
type memStore struct {
	mu        sync.Mutex
	nextID    uint64
	conns     map[uint64]model.Connection
	listings  map[uint64]model.Listing
	questions map[uint64]model.BondingQuestion
	answers   []model.BondingAnswer
	profiles  map[uint64]model.Profile
}

func newMemStore() *memStore {
	return &memStore{
		nextID:    100,
		conns:     map[uint64]model.Connection{},
		listings:  map[uint64]model.Listing{},
		questions: map[uint64]model.BondingQuestion{},
		profiles:  map[uint64]model.Profile{},
	}
}

type memSnapshot struct {
	nextID   uint64
	conns    map[uint64]model.Connection
	listings map[uint64]model.Listing
	answers  []model.BondingAnswer
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		nextID:   m.nextID,
		conns:    make(map[uint64]model.Connection, len(m.conns)),
		listings: make(map[uint64]model.Listing, len(m.listings)),
		answers:  append([]model.BondingAnswer(nil), m.answers...),
	}
	for id, c := range m.conns {
		s.conns[id] = c.Clone()
	}
	for id, l := range m.listings {
		if l.LockedByConnectionID != nil {
			v := *l.LockedByConnectionID
			l.LockedByConnectionID = &v
		}
		s.listings[id] = l
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.nextID = s.nextID
	m.conns = s.conns
	m.listings = s.listings
	m.answers = s.answers
}

func (m *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(memTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) Connection(ctx context.Context, id uint64) (model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return model.Connection{}, connection.ErrNotFound
	}
	return c.Clone(), nil
}

func (m *memStore) ConnectionsByUser(ctx context.Context, userID uint64, limit int) ([]model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Connection
	for _, c := range m.conns {
		if c.BuyerID == userID || c.SellerID == userID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for id, c := range m.conns {
		if connection.Expired(&c, now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memStore) Listing(ctx context.Context, id uint64) (model.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return l, connection.ErrNotFound
	}
	return l, nil
}

func (m *memStore) PickQuestions(ctx context.Context, n int) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for id, q := range m.questions {
		if q.Active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids, nil
}

func (m *memStore) Questions(ctx context.Context, ids []uint64) (map[uint64]model.BondingQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]model.BondingQuestion, len(ids))
	for _, id := range ids {
		if q, ok := m.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (m *memStore) Answers(ctx context.Context, connectionID uint64) ([]model.BondingAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BondingAnswer
	for _, a := range m.answers {
		if a.ConnectionID == connectionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) Profiles(ctx context.Context, userIDs ...uint64) (map[uint64]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]model.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := m.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// memTx runs with memStore.mu already held.
type memTx struct{ m *memStore }

func (t memTx) ConnectionForUpdate(ctx context.Context, id uint64) (model.Connection, error) {
	c, ok := t.m.conns[id]
	if !ok {
		return model.Connection{}, connection.ErrNotFound
	}
	return c.Clone(), nil
}

func (t memTx) InsertConnection(ctx context.Context, c *model.Connection) error {
	t.m.nextID++
	c.ID = t.m.nextID
	c.Version = 1
	t.m.conns[c.ID] = c.Clone()
	return nil
}

func (t memTx) UpdateConnection(ctx context.Context, c *model.Connection) error {
	cur, ok := t.m.conns[c.ID]
	if !ok {
		return connection.ErrNotFound
	}
	if cur.Version != c.Version {
		return connection.ErrConcurrentUpdate
	}
	c.Version++
	t.m.conns[c.ID] = c.Clone()
	return nil
}

func (t memTx) ListingForUpdate(ctx context.Context, id uint64) (model.Listing, error) {
	l, ok := t.m.listings[id]
	if !ok {
		return l, connection.ErrNotFound
	}
	return l, nil
}

func (t memTx) LockListing(ctx context.Context, listingID, connectionID uint64) error {
	l, ok := t.m.listings[listingID]
	if !ok {
		return connection.ErrNotFound
	}
	if !l.Available() {
		return connection.ErrListingUnavailable
	}
	id := connectionID
	l.LockedByConnectionID = &id
	t.m.listings[listingID] = l
	return nil
}

func (t memTx) UnlockListing(ctx context.Context, listingID, connectionID uint64) error {
	l, ok := t.m.listings[listingID]
	if !ok {
		return connection.ErrNotFound
	}
	if l.LockedByConnectionID != nil && *l.LockedByConnectionID == connectionID {
		l.LockedByConnectionID = nil
		t.m.listings[listingID] = l
	}
	return nil
}

func (t memTx) InsertAnswers(ctx context.Context, answers []model.BondingAnswer) error {
	for _, a := range answers {
		for _, b := range t.m.answers {
			if a.ConnectionID == b.ConnectionID && a.Role == b.Role && a.QuestionID == b.QuestionID {
				return connection.ErrAlreadySubmitted
			}
		}
	}
	t.m.answers = append(t.m.answers, answers...)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []connection.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, events []connection.Event) error {
	p.mu.Lock()
	p.events = append(p.events, events...)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []connection.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]connection.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
