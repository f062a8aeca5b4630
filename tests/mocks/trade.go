package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	tradeDomain "github.com/davicafu/tradeagent/internal/trade/domain"
	"github.com/google/uuid"
)

// InMemoryTradeRepo simula TradeRepository. Ignora la transacción: la
// atomicidad real se cubre en los tests de integración con SQLite.
type InMemoryTradeRepo struct {
	Trades map[uuid.UUID]*tradeDomain.Trade
	// FailInsert simula una caída del almacén durante el insert.
	FailInsert error
	mu         sync.Mutex
}

func NewInMemoryTradeRepo() *InMemoryTradeRepo {
	return &InMemoryTradeRepo{
		Trades: make(map[uuid.UUID]*tradeDomain.Trade),
	}
}

func (r *InMemoryTradeRepo) InsertTx(ctx context.Context, tx *sql.Tx, t *tradeDomain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailInsert != nil {
		return r.FailInsert
	}
	if _, ok := r.Trades[t.ID]; ok {
		return tradeDomain.ErrTradeAlreadyExists
	}
	r.Trades[t.ID] = t
	return nil
}

func (r *InMemoryTradeRepo) GetByID(ctx context.Context, id uuid.UUID) (*tradeDomain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.Trades[id]
	if !ok {
		return nil, tradeDomain.ErrTradeNotFound
	}
	return t, nil
}

func (r *InMemoryTradeRepo) List(ctx context.Context, f tradeDomain.TradeFilter) ([]*tradeDomain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []*tradeDomain.Trade
	for _, t := range r.Trades {
		if f.Symbol != nil && t.Asset.Symbol != *f.Symbol {
			continue
		}
		if f.UserID != nil && t.UserID != *f.UserID {
			continue
		}
		if f.CounterpartyID != nil && t.CounterpartyID != *f.CounterpartyID {
			continue
		}
		list = append(list, t)
	}

	sort.Slice(list, func(i, j int) bool {
		if f.Sort.Desc {
			return list[i].ExecutedAt.After(list[j].ExecutedAt)
		}
		return list[i].ExecutedAt.Before(list[j].ExecutedAt)
	})

	start := f.Pagination.Offset
	if start > len(list) {
		return []*tradeDomain.Trade{}, nil
	}
	limit := f.Pagination.Limit
	if limit <= 0 {
		limit = 50
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	return list[start:end], nil
}

// ------------------- Cache -------------------

// DummyCache simula una cache en memoria de trades.
type DummyCache struct {
	store map[string]*tradeDomain.Trade
	mu    sync.Mutex
}

func NewDummyCache() *DummyCache {
	return &DummyCache{
		store: make(map[string]*tradeDomain.Trade),
	}
}

func (c *DummyCache) SetForTest(key string, t *tradeDomain.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = t
}

func (c *DummyCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.store[key]
	if !ok {
		return false, nil
	}

	tradePtr, ok := dest.(*tradeDomain.Trade)
	if !ok {
		return false, nil
	}

	*tradePtr = *t
	return true, nil
}

func (c *DummyCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := val.(*tradeDomain.Trade)
	if !ok {
		return nil
	}
	c.store[key] = t
	return nil
}

func (c *DummyCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

// ------------------- LogStore -------------------

// FakeLogStore captura las líneas para aserciones.
type FakeLogStore struct {
	Lines []string
	mu    sync.Mutex
}

func (s *FakeLogStore) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lines = append(s.Lines, line)
}

func (s *FakeLogStore) Recent(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, n)
	for i := len(s.Lines) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.Lines[i])
	}
	return out
}
