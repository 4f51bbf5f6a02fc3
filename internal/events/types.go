package events

import (
	"time"

	"github.com/google/uuid"
)

// Type — идентификатор типа события.
type Type string

const (
	TicketOpened     Type = "ticket_opened"
	TicketClaimed    Type = "ticket_claimed"
	TicketUnclaimed  Type = "ticket_unclaimed"
	TicketSoftClosed Type = "ticket_soft_closed"
	TicketFinalized  Type = "ticket_finalized"

	PayoutRequested Type = "payout_requested"
	PayoutApproved  Type = "payout_approved"
	PayoutDenied    Type = "payout_denied"
	RewardCredited  Type = "reward_credited"
	RewardDenied    Type = "reward_denied"
)

// AllTypes — все типы событий (для подписчиков «на всё»).
var AllTypes = []Type{
	TicketOpened, TicketClaimed, TicketUnclaimed, TicketSoftClosed, TicketFinalized,
	PayoutRequested, PayoutApproved, PayoutDenied, RewardCredited, RewardDenied,
}

// Event — доменное событие.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	ChannelID int64     `json:"channel_id,omitempty"`
	ActorID   int64     `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New собирает событие со свежим ID.
func New(t Type, channelID, actorID int64, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		ChannelID: channelID,
		ActorID:   actorID,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketPayload — снимок тикета на момент события.
type TicketPayload struct {
	CreatorID     int64  `json:"creator_id"`
	Category      string `json:"category"`
	ClaimerID     int64  `json:"claimer_id,omitempty"`
	Beneficiary   int64  `json:"beneficiary,omitempty"`
	AdminOverride bool   `json:"admin_override,omitempty"`
	TranscriptRef string `json:"transcript_ref,omitempty"`
	Reason        string `json:"reason,omitempty"` // для unclaim: manual | timeout
	Forced        bool   `json:"forced,omitempty"`
}

// LedgerPayload — выплата или начисление.
type LedgerPayload struct {
	RequestID   string `json:"request_id,omitempty"`
	StaffID     int64  `json:"staff_id"`
	Amount      int64  `json:"amount"`
	Balance     int64  `json:"balance"`
	ExternalRef string `json:"external_ref,omitempty"`
	Source      string `json:"source,omitempty"`
}
