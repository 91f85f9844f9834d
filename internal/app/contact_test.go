package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pianolearn/pkg/domain"
	"pianolearn/pkg/payment"
)

func TestSubmitContactStoresAndNotifies(t *testing.T) {
	ta := newTestApp(t, payment.Config{})

	msg, err := ta.SubmitContact(context.Background(), ContactInput{
		Name:    "Asha",
		Email:   "asha@example.com",
		Subject: "Lesson question",
		Message: "Do you cover jazz voicings?",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if msg.Status != domain.MessageNew {
		t.Fatalf("status = %q", msg.Status)
	}
	stored, ok, _ := ta.store.GetContactMessage(msg.ID)
	if !ok || stored.Subject != "Lesson question" {
		t.Fatalf("stored = %+v ok = %v", stored, ok)
	}
	sent := ta.emails.sent()
	if len(sent) != 2 {
		t.Fatalf("want ack + admin notice, got %d emails", len(sent))
	}
	if sent[0].To != "asha@example.com" {
		t.Fatalf("ack to = %q", sent[0].To)
	}
	if sent[1].To != "admin@pianolearn.com" || !strings.Contains(sent[1].HTML, "jazz voicings") {
		t.Fatalf("notice = %+v", sent[1])
	}
}

func TestSubmitContactValidation(t *testing.T) {
	ta := newTestApp(t, payment.Config{})

	cases := []ContactInput{
		{Email: "a@b.com", Subject: "s", Message: "m"},
		{Name: "n", Email: "bad-email", Subject: "s", Message: "m"},
		{Name: "n", Email: "a@b.com", Message: "m"},
		{Name: "n", Email: "a@b.com", Subject: "s"},
	}
	for i, in := range cases {
		if _, err := ta.SubmitContact(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: err = %v", i, err)
		}
	}
}

func TestMarkMessageRead(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	msg, err := ta.SubmitContact(context.Background(), ContactInput{
		Name: "Asha", Email: "asha@example.com", Subject: "Hi", Message: "Hello",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	read, err := ta.MarkMessageRead(msg.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if read.Status != domain.MessageRead {
		t.Fatalf("status = %q", read.Status)
	}
	// idempotent
	again, err := ta.MarkMessageRead(msg.ID)
	if err != nil || again.Status != domain.MessageRead {
		t.Fatalf("second mark: %+v err = %v", again, err)
	}
	if _, err := ta.MarkMessageRead("missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("missing message: err = %v", err)
	}
}
