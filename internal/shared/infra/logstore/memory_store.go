package logstore

import (
	"fmt"
	"sync"
	"time"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
)

// MemoryLogStore es la alternativa en memoria cuando Redis no está
// disponible (o en tests). Anillo acotado protegido por mutex.
type MemoryLogStore struct {
	mu         sync.Mutex
	entries    []string
	maxEntries int
}

func NewMemoryLogStore(maxEntries int) *MemoryLogStore {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &MemoryLogStore{maxEntries: maxEntries}
}

func (s *MemoryLogStore) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := fmt.Sprintf("%s - %s", time.Now().UTC().Format(time.RFC3339Nano), line)
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
	}
}

func (s *MemoryLogStore) Recent(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i])
	}
	return out
}

// Verificación estática
var _ sharedDomain.LogStore = (*MemoryLogStore)(nil)
