// Package tickets — жизненный цикл тикетов поддержки: открытие темы,
// взятие в работу, автоматическое освобождение по таймауту, мягкое
// закрытие с запросом награды и удаление с транскриптом.
package tickets

import "time"

// Ticket — тикет, привязанный к теме супергруппы поддержки.
//
// Мягко закрытый тикет заморожен: взять или отпустить его нельзя.
// Тикет с EndTime != nil терминален и больше не меняется.
type Ticket struct {
	ChannelID   int64 // message_thread_id темы
	Title       string
	CreatorID   int64
	CreatorName string
	Category    string
	Details     string
	StartTime   time.Time
	EndTime     *time.Time

	IsClaimed bool
	ClaimerID int64

	IsSoftClosed  bool
	ClosedBy      int64
	Beneficiary   int64 // кому пойдёт награда
	AdminOverride bool  // закрыт админом поверх чужого claim

	TranscriptRef string
	Messages      []TranscriptEntry
}

// TranscriptEntry — одно сообщение в теме тикета.
type TranscriptEntry struct {
	AuthorID   int64
	AuthorName string
	IsBot      bool
	Timestamp  time.Time
	Content    string
}

// IsOpen — тикет ещё не удалён.
func (t *Ticket) IsOpen() bool {
	return t.EndTime == nil
}

// clone отдаёт копию, которую вызывающий может менять без блокировок.
func (t *Ticket) clone() Ticket {
	c := *t
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	c.Messages = append([]TranscriptEntry(nil), t.Messages...)
	return c
}
