package store

import (
	"time"

	"pianolearn/pkg/domain"
)

// Store defines persistence operations for the catalog, the purchase ledger,
// contact messages, and newsletter subscribers.
type Store interface {
	// products
	SaveProduct(domain.Product) error
	GetProduct(id string) (domain.Product, bool, error)
	ListProducts() ([]domain.Product, error)
	ListActiveProducts() ([]domain.Product, error)
	DeleteProduct(id string) error
	IncrementProductDownloads(id string) error
	CountProducts() (int, error)

	// purchases
	SavePurchase(domain.Purchase) error
	GetPurchase(id string) (domain.Purchase, bool, error)
	GetCompletedPurchaseByToken(token string) (domain.Purchase, bool, error)
	IncrementPurchaseDownloads(id string) error
	ListPurchases() ([]domain.Purchase, error)
	ListCompletedPurchasesByEmail(email string) ([]domain.Purchase, error)
	ListRecentCompletedPurchases(limit int) ([]domain.Purchase, error)
	CountCompletedPurchases() (int, error)
	CompletedRevenue() (float64, error)

	// contact messages
	SaveContactMessage(domain.ContactMessage) error
	GetContactMessage(id string) (domain.ContactMessage, bool, error)
	ListContactMessages() ([]domain.ContactMessage, error)
	ListRecentContactMessages(limit int) ([]domain.ContactMessage, error)
	CountContactMessages() (int, error)

	// newsletter
	SaveSubscriber(domain.NewsletterSubscriber) error
	GetSubscriberByEmail(email string) (domain.NewsletterSubscriber, bool, error)
	ListSubscribers() ([]domain.NewsletterSubscriber, error)
	CountSubscribers() (int, error)
	CountSubscribersByStatus(status domain.SubscriberStatus) (int, error)
	CountSubscriptionsSince(since time.Time) (int, error)
}
