package actions

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"serotonyl.ru/support-bot/internal/common"
)

func TestDecodeTicketActions(t *testing.T) {
	cases := []struct {
		data string
		want Action
	}{
		{OpenTicket("general"), Action{Kind: KindOpenTicket, Category: "general"}},
		{ClaimToggle(101), Action{Kind: KindClaimToggle, ChannelID: 101}},
		{SoftClose(7), Action{Kind: KindSoftClose, ChannelID: 7}},
		{Finalize(42), Action{Kind: KindFinalize, ChannelID: 42}},
	}
	for _, c := range cases {
		got, err := Decode(c.data)
		if err != nil {
			t.Fatalf("Decode(%q): %v", c.data, err)
		}
		if got != c.want {
			t.Fatalf("Decode(%q) = %+v, want %+v", c.data, got, c.want)
		}
	}
}

func TestDecodeDecision(t *testing.T) {
	id := uuid.New()

	got, err := Decode(Decision(PayoutDirect, true, id))
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindApprove || got.Approval != PayoutDirect || got.RequestID != id {
		t.Fatalf("got %+v", got)
	}

	got, err = Decode(Decision(TicketReward, false, id))
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindDeny || got.Approval != TicketReward {
		t.Fatalf("got %+v", got)
	}

	if n := len(Decision(TicketReward, false, id)); n > 64 {
		t.Fatalf("callback data is %d bytes, Telegram allows 64", n)
	}
}

func TestDecodeRejectsUnknownTags(t *testing.T) {
	for _, data := range []string{
		"",
		"casino:spin",
		"t:claim:abc",
		"t:claim:-5",
		"t:reopen:5",
		"t:open:",
		"r:maybe:p:" + uuid.NewString(),
		"r:ok:x:" + uuid.NewString(),
		"r:ok:p:not-a-uuid",
	} {
		_, err := Decode(data)
		if !errors.Is(err, common.ErrUnknownAction) {
			t.Fatalf("Decode(%q) err = %v, want ErrUnknownAction", data, err)
		}
		if !errors.Is(err, common.ErrNotFound) {
			t.Fatalf("Decode(%q) must be NotFound-class", data)
		}
	}
}
