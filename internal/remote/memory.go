package remote

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/roach88/repsync/internal/model"
)

// Call records one operation received by a Memory backend.
type Call struct {
	Method string
	Table  model.Table
	ID     string
	UserID string
}

// Memory is an in-process remote store.
//
// FailWith installs a fault hook consulted before every write, which makes
// it the backend of choice for tests and offline demos.
type Memory struct {
	mu       sync.Mutex
	official map[model.Table]map[string]json.RawMessage
	personal map[model.Table]map[string]map[string]json.RawMessage
	subs     map[model.Table]map[int]func(Change)
	nextSub  int
	fault    func(Call) error
	calls    []Call
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		official: make(map[model.Table]map[string]json.RawMessage),
		personal: make(map[model.Table]map[string]map[string]json.RawMessage),
		subs:     make(map[model.Table]map[int]func(Change)),
	}
}

// Connect returns a client bound to s.
func (m *Memory) Connect(s Session) Client {
	return &memoryClient{store: m, session: s}
}

// FailWith installs a hook that can fail Upsert and Delete calls.
// A nil hook removes it.
func (m *Memory) FailWith(fault func(Call) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fault
}

// Calls returns every write call received so far, including failed ones.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// PersonalRow returns the stored row of a user, if any.
func (m *Memory) PersonalRow(table model.Table, userID, id string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.personal[table][userID][id]
	return row, ok
}

// PublishOfficial writes a curated row and notifies subscribers.
func (m *Memory) PublishOfficial(ctx context.Context, table model.Table, id string, row json.RawMessage) error {
	if err := checkRow(table, id, row); err != nil {
		return err
	}

	m.mu.Lock()
	rows := m.official[table]
	if rows == nil {
		rows = make(map[string]json.RawMessage)
		m.official[table] = rows
	}
	kind := ChangeInsert
	if _, exists := rows[id]; exists {
		kind = ChangeUpdate
	}
	rows[id] = row
	fns := m.subscribersLocked(table)
	m.mu.Unlock()

	notify(fns, Change{Table: table, Kind: kind, ID: id})
	return nil
}

// RemoveOfficial deletes a curated row and notifies subscribers.
func (m *Memory) RemoveOfficial(ctx context.Context, table model.Table, id string) error {
	m.mu.Lock()
	delete(m.official[table], id)
	fns := m.subscribersLocked(table)
	m.mu.Unlock()

	notify(fns, Change{Table: table, Kind: ChangeDelete, ID: id})
	return nil
}

func (m *Memory) subscribersLocked(table model.Table) []func(Change) {
	fns := make([]func(Change), 0, len(m.subs[table]))
	ids := make([]int, 0, len(m.subs[table]))
	for id := range m.subs[table] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, m.subs[table][id])
	}
	return fns
}

func notify(fns []func(Change), change Change) {
	for _, fn := range fns {
		fn(change)
	}
}

func sortedRows(rows map[string]json.RawMessage) []json.RawMessage {
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, rows[id])
	}
	return out
}

type memoryClient struct {
	store   *Memory
	session Session
}

func (c *memoryClient) Session() Session {
	return c.session
}

func (c *memoryClient) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (c *memoryClient) write(ctx context.Context, call Call, apply func(m *Memory)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := c.store
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call)
	if m.fault != nil {
		if err := m.fault(call); err != nil {
			return err
		}
	}
	if !c.session.Authenticated() {
		return ErrUnauthenticated
	}
	apply(m)
	return nil
}

func (c *memoryClient) Upsert(ctx context.Context, table model.Table, id string, row json.RawMessage) error {
	if err := checkRow(table, id, row); err != nil {
		return err
	}
	call := Call{Method: "upsert", Table: table, ID: id, UserID: c.session.UserID}
	return c.write(ctx, call, func(m *Memory) {
		users := m.personal[table]
		if users == nil {
			users = make(map[string]map[string]json.RawMessage)
			m.personal[table] = users
		}
		rows := users[c.session.UserID]
		if rows == nil {
			rows = make(map[string]json.RawMessage)
			users[c.session.UserID] = rows
		}
		rows[id] = row
	})
}

func (c *memoryClient) Delete(ctx context.Context, table model.Table, id string) error {
	call := Call{Method: "delete", Table: table, ID: id, UserID: c.session.UserID}
	return c.write(ctx, call, func(m *Memory) {
		delete(m.personal[table][c.session.UserID], id)
	})
}

func (c *memoryClient) ListOfficial(ctx context.Context, table model.Table) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return sortedRows(c.store.official[table]), nil
}

func (c *memoryClient) ListPersonal(ctx context.Context, table model.Table) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.session.Authenticated() {
		return nil, ErrUnauthenticated
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return sortedRows(c.store.personal[table][c.session.UserID]), nil
}

func (c *memoryClient) Subscribe(ctx context.Context, table model.Table, fn func(Change)) (func(), error) {
	m := c.store
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	id := m.nextSub
	if m.subs[table] == nil {
		m.subs[table] = make(map[int]func(Change))
	}
	m.subs[table][id] = fn

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(stop)
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[table], id)
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-stop:
			}
		}()
	}
	return cancel, nil
}
