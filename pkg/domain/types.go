package domain

import "time"

type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
	ProductDraft    ProductStatus = "draft"
)

type PaymentMethod string

const (
	MethodRazorpay PaymentMethod = "razorpay"
	MethodUPI      PaymentMethod = "upi"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type MessageStatus string

const (
	MessageNew       MessageStatus = "new"
	MessageRead      MessageStatus = "read"
	MessageResponded MessageStatus = "responded"
)

type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
)

// Product is a downloadable PDF offered in the catalog. FilePath is the
// storage key of the uploaded file and is never exposed through the public
// API except as the preview pointer.
type Product struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Subtitle      string        `json:"subtitle,omitempty"`
	Description   string        `json:"description"`
	Price         float64       `json:"price"`
	OriginalPrice float64       `json:"originalPrice"`
	FilePath      string        `json:"-"`
	PreviewPath   string        `json:"preview,omitempty"`
	Pages         int           `json:"pages"`
	Downloads     int           `json:"downloads"`
	Rating        float64       `json:"rating"`
	Badge         string        `json:"badge,omitempty"`
	BadgeColor    string        `json:"badgeColor,omitempty"`
	Image         string        `json:"image,omitempty"`
	Status        ProductStatus `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Purchase records one purchase intent and, after confirmation, the payment
// reference. Title and price are captured at intent time so later product
// edits do not change what the buyer paid.
type Purchase struct {
	ID                string            `json:"id"`
	Email             string            `json:"email"`
	ProductID         string            `json:"productId"`
	ProductTitle      string            `json:"productTitle"`
	Price             float64           `json:"price"`
	PaymentMethod     PaymentMethod     `json:"paymentMethod"`
	PaymentStatus     PaymentStatus     `json:"paymentStatus"`
	RazorpayOrderID   string            `json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID string            `json:"razorpayPaymentId,omitempty"`
	UPITransactionID  string            `json:"upiTransactionId,omitempty"`
	GatewayMeta       map[string]string `json:"-"`
	DownloadToken     string            `json:"downloadToken"`
	DownloadCount     int               `json:"downloadCount"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

type ContactMessage struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Subject     string        `json:"subject"`
	Message     string        `json:"message"`
	Status      MessageStatus `json:"status"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type NewsletterSubscriber struct {
	ID             string           `json:"id"`
	Email          string           `json:"email"`
	Status         SubscriberStatus `json:"status"`
	SubscribedAt   time.Time        `json:"subscribedAt"`
	UnsubscribedAt *time.Time       `json:"unsubscribedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Orderable reports whether the product can be purchased: it must be active
// and reference an uploaded file.
func (p Product) Orderable() bool {
	return p.Status == ProductActive && p.FilePath != ""
}
