package app

import (
	"context"
	"fmt"
	"strings"

	"pianolearn/internal/util"
	"pianolearn/pkg/domain"
	"pianolearn/pkg/mail"
)

// ContactInput is one contact form submission.
type ContactInput struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// SubmitContact stores the message and dispatches the acknowledgement and
// admin notification emails.
func (a *App) SubmitContact(ctx context.Context, in ContactInput) (domain.ContactMessage, error) {
	name := strings.TrimSpace(in.Name)
	subject := strings.TrimSpace(in.Subject)
	body := strings.TrimSpace(in.Message)
	if name == "" || subject == "" || body == "" {
		return domain.ContactMessage{}, invalid("name, subject and message required")
	}
	if !validEmail(in.Email) {
		return domain.ContactMessage{}, invalid("valid email required")
	}
	now := a.now()
	msg := domain.ContactMessage{
		ID:        util.NewID(),
		Name:      name,
		Email:     strings.TrimSpace(in.Email),
		Subject:   subject,
		Message:   body,
		Status:    domain.MessageNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveContactMessage(msg); err != nil {
		return domain.ContactMessage{}, fmt.Errorf("save message: %w", err)
	}
	a.enqueueEmail(ctx, mail.ContactAckEmail(msg.Email, msg.Name))
	if a.adminNotice != "" {
		a.enqueueEmail(ctx, mail.ContactNoticeEmail(a.adminNotice, msg.Name, msg.Email, msg.Subject, msg.Message))
	}
	return msg, nil
}

// ListContactMessages returns all messages for the admin panel, newest first.
func (a *App) ListContactMessages() ([]domain.ContactMessage, error) {
	return a.store.ListContactMessages()
}

// MarkMessageRead transitions a new message to read.
func (a *App) MarkMessageRead(id string) (domain.ContactMessage, error) {
	msg, ok, err := a.store.GetContactMessage(strings.TrimSpace(id))
	if err != nil {
		return domain.ContactMessage{}, err
	}
	if !ok {
		return domain.ContactMessage{}, ErrMessageNotFound
	}
	if msg.Status == domain.MessageNew {
		msg.Status = domain.MessageRead
		msg.UpdatedAt = a.now()
		if err := a.store.SaveContactMessage(msg); err != nil {
			return domain.ContactMessage{}, fmt.Errorf("save message: %w", err)
		}
	}
	return msg, nil
}
