package app

import (
	"context"

	"golang.org/x/sync/errgroup"
	"pianolearn/pkg/domain"
)

const recentLimit = 5

// DashboardStats aggregates the admin panel overview.
type DashboardStats struct {
	TotalProducts    int                     `json:"totalProducts"`
	TotalPurchases   int                     `json:"totalPurchases"`
	TotalRevenue     float64                 `json:"totalRevenue"`
	TotalMessages    int                     `json:"totalMessages"`
	TotalSubscribers int                     `json:"totalSubscribers"`
	RecentPurchases  []domain.Purchase       `json:"recentPurchases"`
	RecentMessages   []domain.ContactMessage `json:"recentMessages"`
}

// GetDashboardStats gathers counts, revenue and recent activity concurrently.
func (a *App) GetDashboardStats(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := a.store.CountProducts()
		stats.TotalProducts = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountCompletedPurchases()
		stats.TotalPurchases = n
		return err
	})
	g.Go(func() error {
		revenue, err := a.store.CompletedRevenue()
		stats.TotalRevenue = revenue
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountContactMessages()
		stats.TotalMessages = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountSubscribers()
		stats.TotalSubscribers = n
		return err
	})
	g.Go(func() error {
		recent, err := a.store.ListRecentCompletedPurchases(recentLimit)
		stats.RecentPurchases = recent
		return err
	})
	g.Go(func() error {
		recent, err := a.store.ListRecentContactMessages(recentLimit)
		stats.RecentMessages = recent
		return err
	})

	if err := g.Wait(); err != nil {
		return DashboardStats{}, err
	}
	return stats, nil
}
