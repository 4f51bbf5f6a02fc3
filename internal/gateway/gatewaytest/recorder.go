// Package gatewaytest — записывающий Gateway для тестов фич.
package gatewaytest

import (
	"context"
	"strings"
	"sync"

	"serotonyl.ru/support-bot/internal/gateway"
)

// Sent — одно отправленное сообщение.
type Sent struct {
	ChatID    int64
	ChannelID int64 // 0 — не тема тикета
	Text      string
	Rows      []gateway.Row
	Ref       gateway.MessageRef
}

// Document — выгруженный файл.
type Document struct {
	ChatID   int64
	Filename string
	Data     []byte
	Caption  string
}

// Recorder запоминает все вызовы. Ошибки конкретных методов задаются
// через поля Fail*; они читаются под мьютексом, меняйте их до вызова.
type Recorder struct {
	mu sync.Mutex

	SupportChatID int64
	nextChannel   int64
	nextMessage   int

	Sent      []Sent
	DMs       []Sent
	Cleared   []gateway.MessageRef
	Created   []gateway.ChannelSpec
	Titles    map[int64]string
	Locked    []int64
	Deleted   []int64
	Documents []Document
	Names     map[int64]string

	FailCreate   error
	FailTitle    error
	FailLock     error
	FailDM       error
	FailSend     error
	FailDocument error
	FailClear    error
}

var _ gateway.Gateway = (*Recorder)(nil)

// New создаёт рекордер; ID тем начинаются со 101.
func New(supportChatID int64) *Recorder {
	return &Recorder{
		SupportChatID: supportChatID,
		nextChannel:   100,
		Titles:        make(map[int64]string),
		Names:         make(map[int64]string),
	}
}

func (r *Recorder) SendToChannel(_ context.Context, channelID int64, text string, rows ...gateway.Row) (gateway.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSend != nil {
		return gateway.MessageRef{}, r.FailSend
	}
	r.nextMessage++
	ref := gateway.MessageRef{ChatID: r.SupportChatID, MessageID: r.nextMessage}
	r.Sent = append(r.Sent, Sent{ChatID: r.SupportChatID, ChannelID: channelID, Text: text, Rows: rows, Ref: ref})
	return ref, nil
}

func (r *Recorder) SendToChat(_ context.Context, chatID int64, text string, rows ...gateway.Row) (gateway.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSend != nil {
		return gateway.MessageRef{}, r.FailSend
	}
	r.nextMessage++
	ref := gateway.MessageRef{ChatID: chatID, MessageID: r.nextMessage}
	r.Sent = append(r.Sent, Sent{ChatID: chatID, Text: text, Rows: rows, Ref: ref})
	return ref, nil
}

func (r *Recorder) DirectMessage(_ context.Context, userID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDM != nil {
		return r.FailDM
	}
	r.DMs = append(r.DMs, Sent{ChatID: userID, Text: text})
	return nil
}

func (r *Recorder) ClearButtons(_ context.Context, ref gateway.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cleared = append(r.Cleared, ref)
	return r.FailClear
}

func (r *Recorder) CreateChannel(_ context.Context, spec gateway.ChannelSpec) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		return 0, r.FailCreate
	}
	r.nextChannel++
	r.Created = append(r.Created, spec)
	r.Titles[r.nextChannel] = spec.Name()
	return r.nextChannel, nil
}

func (r *Recorder) SetChannelTitle(_ context.Context, channelID int64, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailTitle != nil {
		return r.FailTitle
	}
	r.Titles[channelID] = title
	return nil
}

func (r *Recorder) LockChannel(_ context.Context, channelID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailLock != nil {
		return r.FailLock
	}
	r.Locked = append(r.Locked, channelID)
	return nil
}

func (r *Recorder) DeleteChannel(_ context.Context, channelID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deleted = append(r.Deleted, channelID)
	return nil
}

func (r *Recorder) SendDocument(_ context.Context, chatID int64, filename string, data []byte, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDocument != nil {
		return r.FailDocument
	}
	r.Documents = append(r.Documents, Document{ChatID: chatID, Filename: filename, Data: data, Caption: caption})
	return nil
}

func (r *Recorder) DisplayName(_ context.Context, userID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.Names[userID]; ok {
		return name, nil
	}
	return "user", nil
}

// Set меняет поле рекордера под мьютексом.
func (r *Recorder) Set(f func(r *Recorder)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(r)
}

// ChannelTexts — тексты, отправленные в тему.
func (r *Recorder) ChannelTexts(channelID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.Sent {
		if s.ChannelID == channelID {
			out = append(out, s.Text)
		}
	}
	return out
}

// ChatMessages — сообщения в обычный чат.
func (r *Recorder) ChatMessages(chatID int64) []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sent
	for _, s := range r.Sent {
		if s.ChannelID == 0 && s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// DMsTo — тексты личных сообщений пользователю.
func (r *Recorder) DMsTo(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.DMs {
		if s.ChatID == userID {
			out = append(out, s.Text)
		}
	}
	return out
}

// CountContaining — сколько сообщений в теме содержат подстроку.
func (r *Recorder) CountContaining(channelID int64, substr string) int {
	n := 0
	for _, text := range r.ChannelTexts(channelID) {
		if strings.Contains(text, substr) {
			n++
		}
	}
	return n
}

// DeletedCount — сколько раз удалялась тема.
func (r *Recorder) DeletedCount(channelID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range r.Deleted {
		if id == channelID {
			n++
		}
	}
	return n
}

// ClearedRefs — копия списка сообщений, у которых сняли кнопки.
func (r *Recorder) ClearedRefs() []gateway.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gateway.MessageRef(nil), r.Cleared...)
}
