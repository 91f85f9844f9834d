package store

import (
	"sort"
	"sync"
	"time"

	"pianolearn/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and local runs
// without Postgres.
type MemoryStore struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	purchases   map[string]domain.Purchase
	messages    map[string]domain.ContactMessage
	subscribers map[string]domain.NewsletterSubscriber
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:    make(map[string]domain.Product),
		purchases:   make(map[string]domain.Purchase),
		messages:    make(map[string]domain.ContactMessage),
		subscribers: make(map[string]domain.NewsletterSubscriber),
	}
}

func (m *MemoryStore) SaveProduct(p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *MemoryStore) GetProduct(id string) (domain.Product, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p, ok, nil
}

func (m *MemoryStore) ListProducts() ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		res = append(res, p)
	}
	sortNewestFirst(res, func(p domain.Product) time.Time { return p.CreatedAt })
	return res, nil
}

func (m *MemoryStore) ListActiveProducts() ([]domain.Product, error) {
	all, _ := m.ListProducts()
	res := make([]domain.Product, 0, len(all))
	for _, p := range all {
		if p.Status == domain.ProductActive {
			res = append(res, p)
		}
	}
	return res, nil
}

func (m *MemoryStore) DeleteProduct(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
	return nil
}

func (m *MemoryStore) IncrementProductDownloads(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[id]; ok {
		p.Downloads++
		m.products[id] = p
	}
	return nil
}

func (m *MemoryStore) CountProducts() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products), nil
}

func (m *MemoryStore) SavePurchase(p domain.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPurchase(id string) (domain.Purchase, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.purchases[id]
	return p, ok, nil
}

func (m *MemoryStore) GetCompletedPurchaseByToken(token string) (domain.Purchase, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.purchases {
		if p.DownloadToken == token && p.PaymentStatus == domain.PaymentCompleted {
			return p, true, nil
		}
	}
	return domain.Purchase{}, false, nil
}

func (m *MemoryStore) IncrementPurchaseDownloads(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.purchases[id]; ok {
		p.DownloadCount++
		m.purchases[id] = p
	}
	return nil
}

func (m *MemoryStore) ListPurchases() ([]domain.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Purchase, 0, len(m.purchases))
	for _, p := range m.purchases {
		res = append(res, p)
	}
	sortNewestFirst(res, func(p domain.Purchase) time.Time { return p.CreatedAt })
	return res, nil
}

func (m *MemoryStore) ListCompletedPurchasesByEmail(email string) ([]domain.Purchase, error) {
	all, _ := m.ListPurchases()
	res := make([]domain.Purchase, 0, len(all))
	for _, p := range all {
		if p.Email == email && p.PaymentStatus == domain.PaymentCompleted {
			res = append(res, p)
		}
	}
	return res, nil
}

func (m *MemoryStore) ListRecentCompletedPurchases(limit int) ([]domain.Purchase, error) {
	all, _ := m.ListPurchases()
	res := make([]domain.Purchase, 0, limit)
	for _, p := range all {
		if p.PaymentStatus != domain.PaymentCompleted {
			continue
		}
		res = append(res, p)
		if limit > 0 && len(res) >= limit {
			break
		}
	}
	return res, nil
}

func (m *MemoryStore) CountCompletedPurchases() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.purchases {
		if p.PaymentStatus == domain.PaymentCompleted {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CompletedRevenue() (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0.0
	for _, p := range m.purchases {
		if p.PaymentStatus == domain.PaymentCompleted {
			total += p.Price
		}
	}
	return total, nil
}

func (m *MemoryStore) SaveContactMessage(c domain.ContactMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[c.ID] = c
	return nil
}

func (m *MemoryStore) GetContactMessage(id string) (domain.ContactMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.messages[id]
	return c, ok, nil
}

func (m *MemoryStore) ListContactMessages() ([]domain.ContactMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ContactMessage, 0, len(m.messages))
	for _, c := range m.messages {
		res = append(res, c)
	}
	sortNewestFirst(res, func(c domain.ContactMessage) time.Time { return c.CreatedAt })
	return res, nil
}

func (m *MemoryStore) ListRecentContactMessages(limit int) ([]domain.ContactMessage, error) {
	all, _ := m.ListContactMessages()
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) CountContactMessages() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages), nil
}

func (m *MemoryStore) SaveSubscriber(s domain.NewsletterSubscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSubscriberByEmail(email string) (domain.NewsletterSubscriber, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subscribers {
		if s.Email == email {
			return s, true, nil
		}
	}
	return domain.NewsletterSubscriber{}, false, nil
}

func (m *MemoryStore) ListSubscribers() ([]domain.NewsletterSubscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.NewsletterSubscriber, 0, len(m.subscribers))
	for _, s := range m.subscribers {
		res = append(res, s)
	}
	sortNewestFirst(res, func(s domain.NewsletterSubscriber) time.Time { return s.SubscribedAt })
	return res, nil
}

func (m *MemoryStore) CountSubscribers() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers), nil
}

func (m *MemoryStore) CountSubscribersByStatus(status domain.SubscriberStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.subscribers {
		if s.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountSubscriptionsSince(since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.subscribers {
		if !s.SubscribedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func sortNewestFirst[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return at(items[i]).After(at(items[j]))
	})
}
