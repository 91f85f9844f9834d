package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ProductModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"not null"`
	Subtitle      string
	Description   string  `gorm:"type:text;not null"`
	Price         float64 `gorm:"not null"`
	OriginalPrice float64
	FilePath      string `gorm:"not null"`
	PreviewPath   string
	Pages         int
	Downloads     int
	Rating        float64
	Badge         string
	BadgeColor    string
	Image         string
	Status        string    `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type PurchaseModel struct {
	ID                string `gorm:"primaryKey"`
	Email             string `gorm:"not null;index"`
	ProductID         string `gorm:"not null;index"`
	ProductTitle      string `gorm:"not null"`
	Price             float64
	PaymentMethod     string `gorm:"not null"`
	PaymentStatus     string `gorm:"not null;index"`
	RazorpayOrderID   string
	RazorpayPaymentID string
	UPITransactionID  string         `gorm:"column:upi_transaction_id"`
	GatewayMeta       datatypes.JSON `gorm:"type:jsonb"`
	DownloadToken     string         `gorm:"uniqueIndex;not null"`
	DownloadCount     int
	ExpiresAt         time.Time `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null;index"`
	UpdatedAt         time.Time `gorm:"not null"`
}

type ContactMessageModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Email       string `gorm:"not null;index"`
	Subject     string `gorm:"not null"`
	Message     string `gorm:"type:text;not null"`
	Status      string `gorm:"not null"`
	RespondedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type NewsletterSubscriberModel struct {
	ID             string `gorm:"primaryKey"`
	Email          string `gorm:"uniqueIndex;not null"`
	Status         string `gorm:"not null;index"`
	SubscribedAt   time.Time
	UnsubscribedAt *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}
