package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"pianolearn/pkg/domain"
)

const migrateLockID int64 = 51095109

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&ProductModel{},
			&PurchaseModel{},
			&ContactMessageModel{},
			&NewsletterSubscriberModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveProduct stores or updates a product.
func (s *GormStore) SaveProduct(p domain.Product) error {
	model := productToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "subtitle", "description", "price", "original_price",
			"file_path", "preview_path", "pages", "downloads", "rating",
			"badge", "badge_color", "image", "status", "updated_at",
		}),
	}).Create(&model).Error
}

// GetProduct retrieves a product by ID.
func (s *GormStore) GetProduct(id string) (domain.Product, bool, error) {
	var model ProductModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, err
	}
	return productFromModel(model), true, nil
}

// ListProducts returns all products, newest first.
func (s *GormStore) ListProducts() ([]domain.Product, error) {
	return s.listProducts()
}

// ListActiveProducts returns active products, newest first.
func (s *GormStore) ListActiveProducts() ([]domain.Product, error) {
	return s.listProducts("status = ?", string(domain.ProductActive))
}

func (s *GormStore) listProducts(conds ...any) ([]domain.Product, error) {
	var models []ProductModel
	tx := s.db.Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Product, 0, len(models))
	for _, m := range models {
		res = append(res, productFromModel(m))
	}
	return res, nil
}

// DeleteProduct removes a product row. The caller deletes the stored file.
func (s *GormStore) DeleteProduct(id string) error {
	return s.db.Delete(&ProductModel{}, "id = ?", id).Error
}

// IncrementProductDownloads adds one to the product download counter.
func (s *GormStore) IncrementProductDownloads(id string) error {
	return s.db.Model(&ProductModel{}).
		Where("id = ?", id).
		UpdateColumn("downloads", gorm.Expr("downloads + 1")).Error
}

// CountProducts returns the number of products.
func (s *GormStore) CountProducts() (int, error) {
	var count int64
	if err := s.db.Model(&ProductModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SavePurchase stores or updates a purchase.
func (s *GormStore) SavePurchase(p domain.Purchase) error {
	model := purchaseToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"payment_status", "razorpay_order_id", "razorpay_payment_id",
			"upi_transaction_id", "gateway_meta", "updated_at",
		}),
	}).Create(&model).Error
}

// GetPurchase retrieves a purchase by ID.
func (s *GormStore) GetPurchase(id string) (domain.Purchase, bool, error) {
	var model PurchaseModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Purchase{}, false, nil
		}
		return domain.Purchase{}, false, err
	}
	return purchaseFromModel(model), true, nil
}

// GetCompletedPurchaseByToken looks up a completed purchase by download token.
func (s *GormStore) GetCompletedPurchaseByToken(token string) (domain.Purchase, bool, error) {
	var model PurchaseModel
	err := s.db.
		Where("download_token = ? AND payment_status = ?", token, string(domain.PaymentCompleted)).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Purchase{}, false, nil
		}
		return domain.Purchase{}, false, err
	}
	return purchaseFromModel(model), true, nil
}

// IncrementPurchaseDownloads adds one to the purchase download counter.
func (s *GormStore) IncrementPurchaseDownloads(id string) error {
	return s.db.Model(&PurchaseModel{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

// ListPurchases returns all purchases, newest first.
func (s *GormStore) ListPurchases() ([]domain.Purchase, error) {
	return s.listPurchases(0)
}

// ListCompletedPurchasesByEmail returns completed purchases for an email,
// newest first.
func (s *GormStore) ListCompletedPurchasesByEmail(email string) ([]domain.Purchase, error) {
	return s.listPurchases(0, "email = ? AND payment_status = ?", email, string(domain.PaymentCompleted))
}

// ListRecentCompletedPurchases returns the latest completed purchases.
func (s *GormStore) ListRecentCompletedPurchases(limit int) ([]domain.Purchase, error) {
	return s.listPurchases(limit, "payment_status = ?", string(domain.PaymentCompleted))
}

func (s *GormStore) listPurchases(limit int, conds ...any) ([]domain.Purchase, error) {
	var models []PurchaseModel
	tx := s.db.Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Purchase, 0, len(models))
	for _, m := range models {
		res = append(res, purchaseFromModel(m))
	}
	return res, nil
}

// CountCompletedPurchases returns the number of completed purchases.
func (s *GormStore) CountCompletedPurchases() (int, error) {
	var count int64
	err := s.db.Model(&PurchaseModel{}).
		Where("payment_status = ?", string(domain.PaymentCompleted)).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// CompletedRevenue sums the denormalized price of completed purchases.
func (s *GormStore) CompletedRevenue() (float64, error) {
	var total sql.NullFloat64
	err := s.db.Model(&PurchaseModel{}).
		Where("payment_status = ?", string(domain.PaymentCompleted)).
		Select("SUM(price)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

// SaveContactMessage stores or updates a contact message.
func (s *GormStore) SaveContactMessage(m domain.ContactMessage) error {
	model := contactToModel(m)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "responded_at", "updated_at"}),
	}).Create(&model).Error
}

// GetContactMessage retrieves a contact message by ID.
func (s *GormStore) GetContactMessage(id string) (domain.ContactMessage, bool, error) {
	var model ContactMessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ContactMessage{}, false, nil
		}
		return domain.ContactMessage{}, false, err
	}
	return contactFromModel(model), true, nil
}

// ListContactMessages returns all messages, newest first.
func (s *GormStore) ListContactMessages() ([]domain.ContactMessage, error) {
	return s.listContactMessages(0)
}

// ListRecentContactMessages returns the latest messages.
func (s *GormStore) ListRecentContactMessages(limit int) ([]domain.ContactMessage, error) {
	return s.listContactMessages(limit)
}

func (s *GormStore) listContactMessages(limit int) ([]domain.ContactMessage, error) {
	var models []ContactMessageModel
	tx := s.db.Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ContactMessage, 0, len(models))
	for _, m := range models {
		res = append(res, contactFromModel(m))
	}
	return res, nil
}

// CountContactMessages returns the number of contact messages.
func (s *GormStore) CountContactMessages() (int, error) {
	var count int64
	if err := s.db.Model(&ContactMessageModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveSubscriber stores or updates a newsletter subscriber.
func (s *GormStore) SaveSubscriber(sub domain.NewsletterSubscriber) error {
	model := subscriberToModel(sub)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "subscribed_at", "unsubscribed_at", "updated_at",
		}),
	}).Create(&model).Error
}

// GetSubscriberByEmail looks up a subscriber by email.
func (s *GormStore) GetSubscriberByEmail(email string) (domain.NewsletterSubscriber, bool, error) {
	var model NewsletterSubscriberModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.NewsletterSubscriber{}, false, nil
		}
		return domain.NewsletterSubscriber{}, false, err
	}
	return subscriberFromModel(model), true, nil
}

// ListSubscribers returns all subscribers, newest subscription first.
func (s *GormStore) ListSubscribers() ([]domain.NewsletterSubscriber, error) {
	var models []NewsletterSubscriberModel
	if err := s.db.Order("subscribed_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.NewsletterSubscriber, 0, len(models))
	for _, m := range models {
		res = append(res, subscriberFromModel(m))
	}
	return res, nil
}

// CountSubscribers returns the number of subscribers.
func (s *GormStore) CountSubscribers() (int, error) {
	var count int64
	if err := s.db.Model(&NewsletterSubscriberModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountSubscribersByStatus counts subscribers with the given status.
func (s *GormStore) CountSubscribersByStatus(status domain.SubscriberStatus) (int, error) {
	var count int64
	err := s.db.Model(&NewsletterSubscriberModel{}).
		Where("status = ?", string(status)).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountSubscriptionsSince counts subscriptions made at or after the cutoff.
func (s *GormStore) CountSubscriptionsSince(since time.Time) (int, error) {
	var count int64
	err := s.db.Model(&NewsletterSubscriberModel{}).
		Where("subscribed_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func productToModel(p domain.Product) ProductModel {
	return ProductModel{
		ID:            p.ID,
		Title:         p.Title,
		Subtitle:      p.Subtitle,
		Description:   p.Description,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		FilePath:      p.FilePath,
		PreviewPath:   p.PreviewPath,
		Pages:         p.Pages,
		Downloads:     p.Downloads,
		Rating:        p.Rating,
		Badge:         p.Badge,
		BadgeColor:    p.BadgeColor,
		Image:         p.Image,
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func productFromModel(m ProductModel) domain.Product {
	return domain.Product{
		ID:            m.ID,
		Title:         m.Title,
		Subtitle:      m.Subtitle,
		Description:   m.Description,
		Price:         m.Price,
		OriginalPrice: m.OriginalPrice,
		FilePath:      m.FilePath,
		PreviewPath:   m.PreviewPath,
		Pages:         m.Pages,
		Downloads:     m.Downloads,
		Rating:        m.Rating,
		Badge:         m.Badge,
		BadgeColor:    m.BadgeColor,
		Image:         m.Image,
		Status:        domain.ProductStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func purchaseToModel(p domain.Purchase) PurchaseModel {
	meta, _ := json.Marshal(p.GatewayMeta)
	return PurchaseModel{
		ID:                p.ID,
		Email:             p.Email,
		ProductID:         p.ProductID,
		ProductTitle:      p.ProductTitle,
		Price:             p.Price,
		PaymentMethod:     string(p.PaymentMethod),
		PaymentStatus:     string(p.PaymentStatus),
		RazorpayOrderID:   p.RazorpayOrderID,
		RazorpayPaymentID: p.RazorpayPaymentID,
		UPITransactionID:  p.UPITransactionID,
		GatewayMeta:       meta,
		DownloadToken:     p.DownloadToken,
		DownloadCount:     p.DownloadCount,
		ExpiresAt:         p.ExpiresAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func purchaseFromModel(m PurchaseModel) domain.Purchase {
	var meta map[string]string
	if len(m.GatewayMeta) > 0 {
		_ = json.Unmarshal(m.GatewayMeta, &meta)
	}
	return domain.Purchase{
		ID:                m.ID,
		Email:             m.Email,
		ProductID:         m.ProductID,
		ProductTitle:      m.ProductTitle,
		Price:             m.Price,
		PaymentMethod:     domain.PaymentMethod(m.PaymentMethod),
		PaymentStatus:     domain.PaymentStatus(m.PaymentStatus),
		RazorpayOrderID:   m.RazorpayOrderID,
		RazorpayPaymentID: m.RazorpayPaymentID,
		UPITransactionID:  m.UPITransactionID,
		GatewayMeta:       meta,
		DownloadToken:     m.DownloadToken,
		DownloadCount:     m.DownloadCount,
		ExpiresAt:         m.ExpiresAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func contactToModel(c domain.ContactMessage) ContactMessageModel {
	return ContactMessageModel{
		ID:          c.ID,
		Name:        c.Name,
		Email:       c.Email,
		Subject:     c.Subject,
		Message:     c.Message,
		Status:      string(c.Status),
		RespondedAt: c.RespondedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func contactFromModel(m ContactMessageModel) domain.ContactMessage {
	return domain.ContactMessage{
		ID:          m.ID,
		Name:        m.Name,
		Email:       m.Email,
		Subject:     m.Subject,
		Message:     m.Message,
		Status:      domain.MessageStatus(m.Status),
		RespondedAt: m.RespondedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func subscriberToModel(s domain.NewsletterSubscriber) NewsletterSubscriberModel {
	return NewsletterSubscriberModel{
		ID:             s.ID,
		Email:          s.Email,
		Status:         string(s.Status),
		SubscribedAt:   s.SubscribedAt,
		UnsubscribedAt: s.UnsubscribedAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func subscriberFromModel(m NewsletterSubscriberModel) domain.NewsletterSubscriber {
	return domain.NewsletterSubscriber{
		ID:             m.ID,
		Email:          m.Email,
		Status:         domain.SubscriberStatus(m.Status),
		SubscribedAt:   m.SubscribedAt,
		UnsubscribedAt: m.UnsubscribedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
