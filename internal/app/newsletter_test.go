package app

import (
	"context"
	"errors"
	"testing"

	"pianolearn/pkg/domain"
	"pianolearn/pkg/payment"
)

func TestSubscribeAndUnsubscribe(t *testing.T) {
	ta := newTestApp(t, payment.Config{})

	sub, err := ta.Subscribe(context.Background(), "Fan@Example.com")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.Email != "fan@example.com" || sub.Status != domain.SubscriberActive {
		t.Fatalf("subscriber = %+v", sub)
	}
	if sent := ta.emails.sent(); len(sent) != 1 || sent[0].To != "fan@example.com" {
		t.Fatalf("welcome email = %+v", sent)
	}

	if _, err := ta.Subscribe(context.Background(), "fan@example.com"); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("duplicate subscribe: err = %v", err)
	}

	gone, err := ta.Unsubscribe("fan@example.com")
	if err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if gone.Status != domain.SubscriberUnsubscribed || gone.UnsubscribedAt == nil {
		t.Fatalf("subscriber = %+v", gone)
	}
	if _, err := ta.Unsubscribe("fan@example.com"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Fatalf("double unsubscribe: err = %v", err)
	}
}

func TestSubscribeReactivates(t *testing.T) {
	ta := newTestApp(t, payment.Config{})

	if _, err := ta.Subscribe(context.Background(), "fan@example.com"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := ta.Unsubscribe("fan@example.com"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	back, err := ta.Subscribe(context.Background(), "fan@example.com")
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if back.Status != domain.SubscriberActive || back.UnsubscribedAt != nil {
		t.Fatalf("subscriber = %+v", back)
	}
	subs, _ := ta.store.ListSubscribers()
	if len(subs) != 1 {
		t.Fatalf("want one subscriber record, got %d", len(subs))
	}
}

func TestSubscribeValidatesEmail(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	if _, err := ta.Subscribe(context.Background(), "nope"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	if _, err := ta.Unsubscribe("nope"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewsletterStats(t *testing.T) {
	ta := newTestApp(t, payment.Config{})

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if _, err := ta.Subscribe(context.Background(), email); err != nil {
			t.Fatalf("subscribe %s: %v", email, err)
		}
	}
	if _, err := ta.Unsubscribe("c@example.com"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	stats, err := ta.GetNewsletterStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Active != 2 || stats.Unsubscribed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Today != 3 {
		t.Fatalf("today = %d, want 3", stats.Today)
	}
}
