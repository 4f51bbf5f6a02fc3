// Package actions — закрытый набор действий, которые приходят из кнопок.
// Callback-данные разбираются один раз на входе в роутер; всё, что не
// распознано, — common.ErrUnknownAction.
//
// Формат callback-данных (лимит Telegram — 64 байта):
//
//	t:open:<категория>     открыть тикет из панели
//	t:claim:<тема>         взять / отпустить тикет
//	t:close:<тема>         мягко закрыть
//	t:final:<тема>         удалить с транскриптом
//	r:ok:<p|t>:<uuid>      одобрить выплату (p) или награду за тикет (t)
//	r:no:<p|t>:<uuid>      отклонить
package actions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"serotonyl.ru/support-bot/internal/common"
)

// MaxDataLen — лимит Telegram на callback_data в байтах.
const MaxDataLen = 64

// Kind — вид действия.
type Kind int

const (
	KindOpenTicket Kind = iota + 1
	KindClaimToggle
	KindSoftClose
	KindFinalize
	KindApprove
	KindDeny
)

func (k Kind) String() string {
	switch k {
	case KindOpenTicket:
		return "open_ticket"
	case KindClaimToggle:
		return "claim_toggle"
	case KindSoftClose:
		return "soft_close"
	case KindFinalize:
		return "finalize"
	case KindApprove:
		return "approve"
	case KindDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// ApprovalKind — какой поток одобрения.
type ApprovalKind string

const (
	PayoutDirect ApprovalKind = "p"
	TicketReward ApprovalKind = "t"
)

func (k ApprovalKind) String() string {
	switch k {
	case PayoutDirect:
		return "payout"
	case TicketReward:
		return "ticket_reward"
	default:
		return string(k)
	}
}

// Action — разобранное действие. Заполнены только поля своего вида.
type Action struct {
	Kind      Kind
	Category  string       // KindOpenTicket
	ChannelID int64        // KindClaimToggle, KindSoftClose, KindFinalize
	Approval  ApprovalKind // KindApprove, KindDeny
	RequestID uuid.UUID    // KindApprove, KindDeny
}

func OpenTicket(category string) string { return "t:open:" + category }

func ClaimToggle(channelID int64) string { return "t:claim:" + strconv.FormatInt(channelID, 10) }

func SoftClose(channelID int64) string { return "t:close:" + strconv.FormatInt(channelID, 10) }

func Finalize(channelID int64) string { return "t:final:" + strconv.FormatInt(channelID, 10) }

// Decision кодирует кнопку одобрения или отказа.
func Decision(kind ApprovalKind, approve bool, requestID uuid.UUID) string {
	verb := "no"
	if approve {
		verb = "ok"
	}
	return "r:" + verb + ":" + string(kind) + ":" + requestID.String()
}

// Decode разбирает callback-данные.
func Decode(data string) (Action, error) {
	parts := strings.Split(data, ":")
	unknown := fmt.Errorf("%w: %q", common.ErrUnknownAction, data)

	switch {
	case len(parts) == 3 && parts[0] == "t":
		if parts[1] == "open" {
			if parts[2] == "" {
				return Action{}, unknown
			}
			return Action{Kind: KindOpenTicket, Category: parts[2]}, nil
		}
		channelID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || channelID <= 0 {
			return Action{}, unknown
		}
		switch parts[1] {
		case "claim":
			return Action{Kind: KindClaimToggle, ChannelID: channelID}, nil
		case "close":
			return Action{Kind: KindSoftClose, ChannelID: channelID}, nil
		case "final":
			return Action{Kind: KindFinalize, ChannelID: channelID}, nil
		}

	case len(parts) == 4 && parts[0] == "r":
		var kind Kind
		switch parts[1] {
		case "ok":
			kind = KindApprove
		case "no":
			kind = KindDeny
		default:
			return Action{}, unknown
		}
		approval := ApprovalKind(parts[2])
		if approval != PayoutDirect && approval != TicketReward {
			return Action{}, unknown
		}
		id, err := uuid.Parse(parts[3])
		if err != nil {
			return Action{}, unknown
		}
		return Action{Kind: kind, Approval: approval, RequestID: id}, nil
	}
	return Action{}, unknown
}
