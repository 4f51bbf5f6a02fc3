package rewards

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"serotonyl.ru/support-bot/internal/actions"
	"serotonyl.ru/support-bot/internal/gateway"
)

// PendingStore хранит нерассмотренные заявки. Take удаляет заявку
// атомарно, поэтому решение по каждой принимается один раз.
type PendingStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Request
}

// NewPendingStore создаёт пустое хранилище.
func NewPendingStore() *PendingStore {
	return &PendingStore{items: make(map[uuid.UUID]*Request)}
}

// Put добавляет заявку.
func (p *PendingStore) Put(r Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[r.ID] = &r
}

// SetMessage запоминает карточку заявки.
func (p *PendingStore) SetMessage(id uuid.UUID, ref gateway.MessageRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.items[id]; ok {
		r.Message = ref
	}
}

// Take забирает заявку нужного вида. Второй вызов с тем же id вернёт false.
func (p *PendingStore) Take(id uuid.UUID, kind actions.ApprovalKind) (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.items[id]
	if !ok || r.Kind != kind {
		return Request{}, false
	}
	delete(p.items, id)
	return *r, true
}

// Drop убирает заявку без решения (карточку не удалось отправить).
func (p *PendingStore) Drop(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, id)
}

// List — ожидающие заявки, старые первыми.
func (p *PendingStore) List() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, 0, len(p.items))
	for _, r := range p.items {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}
