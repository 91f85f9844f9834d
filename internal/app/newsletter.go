package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pianolearn/internal/util"
	"pianolearn/pkg/domain"
	"pianolearn/pkg/mail"
)

// NewsletterStats summarizes the subscriber base.
type NewsletterStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Unsubscribed int `json:"unsubscribed"`
	Today        int `json:"today"`
}

// Subscribe adds or reactivates a subscription and sends the welcome email.
// An already-active subscription is an error.
func (a *App) Subscribe(ctx context.Context, email string) (domain.NewsletterSubscriber, error) {
	if !validEmail(email) {
		return domain.NewsletterSubscriber{}, invalid("valid email required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	now := a.now()

	sub, ok, err := a.store.GetSubscriberByEmail(email)
	if err != nil {
		return domain.NewsletterSubscriber{}, err
	}
	switch {
	case ok && sub.Status == domain.SubscriberActive:
		return domain.NewsletterSubscriber{}, ErrAlreadySubscribed
	case ok:
		sub.Status = domain.SubscriberActive
		sub.SubscribedAt = now
		sub.UnsubscribedAt = nil
		sub.UpdatedAt = now
	default:
		sub = domain.NewsletterSubscriber{
			ID:           util.NewID(),
			Email:        email,
			Status:       domain.SubscriberActive,
			SubscribedAt: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	if err := a.store.SaveSubscriber(sub); err != nil {
		return domain.NewsletterSubscriber{}, fmt.Errorf("save subscriber: %w", err)
	}
	a.enqueueEmail(ctx, mail.WelcomeEmail(email))
	return sub, nil
}

// Unsubscribe deactivates an active subscription.
func (a *App) Unsubscribe(email string) (domain.NewsletterSubscriber, error) {
	if !validEmail(email) {
		return domain.NewsletterSubscriber{}, invalid("valid email required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	sub, ok, err := a.store.GetSubscriberByEmail(email)
	if err != nil {
		return domain.NewsletterSubscriber{}, err
	}
	if !ok || sub.Status != domain.SubscriberActive {
		return domain.NewsletterSubscriber{}, ErrSubscriberNotFound
	}
	now := a.now()
	sub.Status = domain.SubscriberUnsubscribed
	sub.UnsubscribedAt = &now
	sub.UpdatedAt = now
	if err := a.store.SaveSubscriber(sub); err != nil {
		return domain.NewsletterSubscriber{}, fmt.Errorf("save subscriber: %w", err)
	}
	return sub, nil
}

// ListSubscribers returns all subscribers for the admin panel.
func (a *App) ListSubscribers() ([]domain.NewsletterSubscriber, error) {
	return a.store.ListSubscribers()
}

// GetNewsletterStats counts totals plus signups since local midnight.
func (a *App) GetNewsletterStats() (NewsletterStats, error) {
	total, err := a.store.CountSubscribers()
	if err != nil {
		return NewsletterStats{}, err
	}
	active, err := a.store.CountSubscribersByStatus(domain.SubscriberActive)
	if err != nil {
		return NewsletterStats{}, err
	}
	unsubscribed, err := a.store.CountSubscribersByStatus(domain.SubscriberUnsubscribed)
	if err != nil {
		return NewsletterStats{}, err
	}
	now := a.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := a.store.CountSubscriptionsSince(midnight)
	if err != nil {
		return NewsletterStats{}, err
	}
	return NewsletterStats{
		Total:        total,
		Active:       active,
		Unsubscribed: unsubscribed,
		Today:        today,
	}, nil
}
