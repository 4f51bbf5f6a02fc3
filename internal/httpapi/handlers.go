package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"serotonyl.ru/support-bot/internal/features/ledger"
	"serotonyl.ru/support-bot/internal/features/tickets"
)

type handler struct {
	deps    Deps
	started time.Time
}

func newHandler(deps Deps) *handler {
	return &handler{deps: deps, started: time.Now()}
}

type balanceDTO struct {
	StaffID int64 `json:"staff_id"`
	Balance int64 `json:"balance"`
}

type transactionDTO struct {
	ID          int64     `json:"id"`
	StaffID     int64     `json:"staff_id"`
	AmountPaid  int64     `json:"amount_paid"`
	ExternalRef string    `json:"external_ref"`
	ApproverID  int64     `json:"approver_id"`
	Timestamp   time.Time `json:"timestamp"`
}

type statsDTO struct {
	TotalTransactions       int              `json:"total_transactions"`
	TotalPaid               int64            `json:"total_paid"`
	ActiveAccounts          int              `json:"active_accounts"`
	TotalOutstandingBalance int64            `json:"total_outstanding_balance"`
	TopBalances             []balanceDTO     `json:"top_balances"`
	RecentTransactions      []transactionDTO `json:"recent_transactions"`
	OpenTickets             int              `json:"open_tickets"`
	PendingRequests         int              `json:"pending_requests"`
}

type ticketDTO struct {
	ChannelID     int64      `json:"channel_id"`
	Title         string     `json:"title"`
	Category      string     `json:"category"`
	CreatorID     int64      `json:"creator_id"`
	IsClaimed     bool       `json:"is_claimed"`
	ClaimerID     int64      `json:"claimer_id,omitempty"`
	IsSoftClosed  bool       `json:"is_soft_closed"`
	Beneficiary   int64      `json:"beneficiary,omitempty"`
	TranscriptRef string     `json:"transcript_ref,omitempty"`
	Messages      int        `json:"messages"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
}

type pendingDTO struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	StaffID     int64     `json:"staff_id"`
	Amount      int64     `json:"amount"`
	ChannelID   int64     `json:"channel_id,omitempty"`
	ExternalRef string    `json:"external_ref,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func (h *handler) live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"version": h.deps.Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *handler) ready(c *fiber.Ctx) error {
	if h.deps.DB == nil {
		return c.JSON(fiber.Map{"status": "ready", "postgres": "disabled"})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := h.deps.DB.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "unavailable",
			"postgres": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "postgres": "ok"})
}

func (h *handler) stats(c *fiber.Ctx) error {
	top := c.QueryInt("top", 10)
	recent := c.QueryInt("recent", 10)
	if top < 0 || recent < 0 || top > 100 || recent > 100 {
		return fiber.NewError(fiber.StatusBadRequest, "top/recent должны быть в [0, 100]")
	}

	st := h.deps.Ledger.Statistics(top, recent)
	out := statsDTO{
		TotalTransactions:       st.TotalTransactions,
		TotalPaid:               st.TotalPaid,
		ActiveAccounts:          st.ActiveAccountCount,
		TotalOutstandingBalance: st.TotalOutstandingBalance,
		TopBalances:             make([]balanceDTO, 0, len(st.TopBalances)),
		RecentTransactions:      make([]transactionDTO, 0, len(st.RecentTransactions)),
		OpenTickets:             len(h.deps.Tickets.Registry().Active()),
		PendingRequests:         len(h.deps.Rewards.Pending().List()),
	}
	for _, b := range st.TopBalances {
		out.TopBalances = append(out.TopBalances, balanceDTO{StaffID: b.StaffID, Balance: b.Balance})
	}
	for _, tx := range st.RecentTransactions {
		out.RecentTransactions = append(out.RecentTransactions, toTransactionDTO(tx))
	}
	return c.JSON(out)
}

// listTickets — GET /api/tickets[?closed=true&limit=N]
func (h *handler) listTickets(c *fiber.Ctx) error {
	var list []tickets.Ticket
	if c.QueryBool("closed") {
		limit := c.QueryInt("limit", 50)
		if limit <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit должен быть > 0")
		}
		list = h.deps.Tickets.Registry().Closed(limit)
	} else {
		list = h.deps.Tickets.Registry().Active()
	}

	out := make([]ticketDTO, 0, len(list))
	for _, t := range list {
		out = append(out, toTicketDTO(t))
	}
	return c.JSON(fiber.Map{"data": out})
}

func (h *handler) getTicket(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "некорректный id темы")
	}
	t, ok := h.deps.Tickets.Registry().GetActive(int64(id))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "тикет не найден")
	}
	return c.JSON(fiber.Map{"data": toTicketDTO(t)})
}

func (h *handler) pending(c *fiber.Ctx) error {
	list := h.deps.Rewards.Pending().List()
	out := make([]pendingDTO, 0, len(list))
	for _, r := range list {
		out = append(out, pendingDTO{
			ID:          r.ID.String(),
			Kind:        r.Kind.String(),
			StaffID:     r.StaffID,
			Amount:      r.Amount,
			ChannelID:   r.ChannelID,
			ExternalRef: r.ExternalRef,
			RequestedAt: r.RequestedAt,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

func toTicketDTO(t tickets.Ticket) ticketDTO {
	return ticketDTO{
		ChannelID:     t.ChannelID,
		Title:         t.Title,
		Category:      t.Category,
		CreatorID:     t.CreatorID,
		IsClaimed:     t.IsClaimed,
		ClaimerID:     t.ClaimerID,
		IsSoftClosed:  t.IsSoftClosed,
		Beneficiary:   t.Beneficiary,
		TranscriptRef: t.TranscriptRef,
		Messages:      len(t.Messages),
		StartTime:     t.StartTime,
		EndTime:       t.EndTime,
	}
}

func toTransactionDTO(tx ledger.Transaction) transactionDTO {
	return transactionDTO{
		ID:          tx.ID,
		StaffID:     tx.StaffID,
		AmountPaid:  tx.AmountPaid,
		ExternalRef: tx.ExternalRef,
		ApproverID:  tx.ApproverID,
		Timestamp:   tx.Timestamp,
	}
}
