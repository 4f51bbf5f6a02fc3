// Package tickets — registry.go владеет записями тикетов.
// Каждая проверка состояния и следующая за ней запись выполняются под
// одним мьютексом, без вызовов мессенджера внутри.
package tickets

import (
	"fmt"
	"sort"
	"sync"

	"serotonyl.ru/support-bot/internal/clock"
	"serotonyl.ru/support-bot/internal/common"
)

const defaultClosedLogSize = 200

// Registry хранит тикеты по ID темы.
type Registry struct {
	mu    sync.Mutex
	clock clock.Clock

	tickets       map[int64]*Ticket  // включая удалённые, но ещё не вычищенные
	openByCreator map[int64]int64    // автор → тема открытого тикета
	reserved      map[int64]struct{} // авторы, для которых сейчас создаётся тема
	closed        []Ticket           // журнал удалённых тикетов, свежие в конце
	closedLimit   int
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{
		clock:         clk,
		tickets:       make(map[int64]*Ticket),
		openByCreator: make(map[int64]int64),
		reserved:      make(map[int64]struct{}),
		closedLimit:   defaultClosedLogSize,
	}
}

// Reserve занимает слот «один открытый тикет на автора» до того, как
// тема будет создана в мессенджере. Снимается через Open или Release.
func (r *Registry) Reserve(creatorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.openByCreator[creatorID]; ok {
		return common.ErrDuplicateOpenTicket
	}
	if _, ok := r.reserved[creatorID]; ok {
		return common.ErrDuplicateOpenTicket
	}
	r.reserved[creatorID] = struct{}{}
	return nil
}

// Release снимает резерв, если тема так и не была создана.
func (r *Registry) Release(creatorID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, creatorID)
}

// Open регистрирует тикет для созданной темы.
func (r *Registry) Open(channelID int64, title string, creatorID int64, creatorName, category, details string) (Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.openByCreator[creatorID]; ok {
		return Ticket{}, common.ErrDuplicateOpenTicket
	}
	if _, ok := r.tickets[channelID]; ok {
		return Ticket{}, fmt.Errorf("тема %d уже занята тикетом", channelID)
	}

	t := &Ticket{
		ChannelID:   channelID,
		Title:       title,
		CreatorID:   creatorID,
		CreatorName: creatorName,
		Category:    category,
		Details:     details,
		StartTime:   r.clock.Now(),
	}
	r.tickets[channelID] = t
	r.openByCreator[creatorID] = channelID
	delete(r.reserved, creatorID)
	return t.clone(), nil
}

// active — тикет, если он есть и ещё не удалён. Вызывать под mu.
// Все переходы идут через него: удалённый тикет нельзя взять или закрыть.
func (r *Registry) active(channelID int64) (*Ticket, error) {
	t, ok := r.tickets[channelID]
	if !ok || !t.IsOpen() {
		return nil, common.ErrNotFound
	}
	return t, nil
}

// GetActive возвращает копию открытого тикета.
func (r *Registry) GetActive(channelID int64) (Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.active(channelID)
	if err != nil {
		return Ticket{}, false
	}
	return t.clone(), true
}

// HeldBy — тикет открыт, не закрыт и взят именно staffID.
func (r *Registry) HeldBy(channelID, staffID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.active(channelID)
	return err == nil && t.IsClaimed && !t.IsSoftClosed && t.ClaimerID == staffID
}

// Claim отмечает тикет взятым. Работает только для свободного и не
// закрытого тикета.
func (r *Registry) Claim(channelID, staffID int64) (Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.active(channelID)
	if err != nil {
		return Ticket{}, err
	}
	if t.IsSoftClosed {
		return Ticket{}, fmt.Errorf("%w: тикет закрыт", common.ErrAlreadyClaimed)
	}
	if t.IsClaimed {
		return Ticket{}, common.ErrAlreadyClaimed
	}
	t.IsClaimed = true
	t.ClaimerID = staffID
	return t.clone(), nil
}

// Unclaim освобождает тикет. Повторный вызов ничего не делает.
// Возвращает ID прежнего исполнителя (0, если тикет был свободен).
func (r *Registry) Unclaim(channelID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.active(channelID)
	if err != nil {
		return 0, err
	}
	if t.IsSoftClosed {
		return 0, common.ErrAlreadySoftClosed
	}
	prev := t.ClaimerID
	t.IsClaimed = false
	t.ClaimerID = 0
	return prev, nil
}

// UnclaimIf освобождает тикет, только если его держит staffID.
func (r *Registry) UnclaimIf(channelID, staffID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.active(channelID)
	if err != nil {
		return err
	}
	if t.IsSoftClosed {
		return common.ErrAlreadySoftClosed
	}
	if !t.IsClaimed || t.ClaimerID != staffID {
		return common.ErrNotClaimer
	}
	t.IsClaimed = false
	t.ClaimerID = 0
	return nil
}

// SoftClose закрывает тикет для переписки и фиксирует получателя награды.
// Взятый тикет закрывает только его исполнитель; adminOverride снимает
// это ограничение, награда при этом остаётся исполнителю.
func (r *Registry) SoftClose(channelID, closerID int64, adminOverride bool) (Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.active(channelID)
	if err != nil {
		return Ticket{}, err
	}
	if t.IsSoftClosed {
		return Ticket{}, common.ErrAlreadySoftClosed
	}
	override := false
	if t.IsClaimed && t.ClaimerID != closerID {
		if !adminOverride {
			return Ticket{}, common.ErrNotClaimer
		}
		override = true
	}

	t.IsSoftClosed = true
	t.ClosedBy = closerID
	t.AdminOverride = override
	t.Beneficiary = closerID
	if t.IsClaimed {
		t.Beneficiary = t.ClaimerID
	}
	return t.clone(), nil
}

// ReopenSoftClosed откатывает SoftClose, если мессенджер не дал закрыть тему.
func (r *Registry) ReopenSoftClosed(channelID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.active(channelID)
	if err != nil || !t.IsSoftClosed {
		return
	}
	t.IsSoftClosed = false
	t.ClosedBy = 0
	t.Beneficiary = 0
	t.AdminOverride = false
}

// Finalize делает тикет терминальным. Без force требует мягкого закрытия.
// EndTime ставится ровно один раз: второй вызов получит ErrNotFound.
func (r *Registry) Finalize(channelID int64, force bool, transcriptRef string) (Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.active(channelID)
	if err != nil {
		return Ticket{}, err
	}
	if !force && !t.IsSoftClosed {
		return Ticket{}, common.ErrNotSoftClosed
	}
	end := r.clock.Now()
	t.EndTime = &end
	t.TranscriptRef = transcriptRef
	if r.openByCreator[t.CreatorID] == channelID {
		delete(r.openByCreator, t.CreatorID)
	}
	return t.clone(), nil
}

// Purge убирает удалённый тикет из реестра в журнал закрытых.
// true возвращается только первому вызову.
func (r *Registry) Purge(channelID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[channelID]
	if !ok || t.IsOpen() {
		return false
	}
	delete(r.tickets, channelID)

	entry := t.clone()
	entry.Messages = nil
	r.closed = append(r.closed, entry)
	if len(r.closed) > r.closedLimit {
		r.closed = append([]Ticket(nil), r.closed[len(r.closed)-r.closedLimit:]...)
	}
	return true
}

// AppendMessage добавляет сообщение в транскрипт открытого тикета.
func (r *Registry) AppendMessage(channelID int64, entry TranscriptEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.active(channelID)
	if err != nil {
		return false
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.clock.Now()
	}
	t.Messages = append(t.Messages, entry)
	return true
}

// Active — открытые тикеты, старые первыми. Без транскриптов.
func (r *Registry) Active() []Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		if !t.IsOpen() {
			continue
		}
		c := t.clone()
		c.Messages = nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ChannelID < out[j].ChannelID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Closed — последние limit удалённых тикетов, свежие первыми.
func (r *Registry) Closed(limit int) []Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Ticket
	for i := len(r.closed) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, r.closed[i])
	}
	return out
}
