package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"pianolearn/internal/util"
	"pianolearn/pkg/domain"
	"pianolearn/pkg/mail"
	"pianolearn/pkg/payment"
	"pianolearn/pkg/storage"
)

// IntentInput starts a purchase.
type IntentInput struct {
	Email     string
	ProductID string
	Method    domain.PaymentMethod
}

// IntentResult is the recorded intent plus whatever the client needs to pay.
type IntentResult struct {
	Purchase domain.Purchase
	Payment  payment.Data
}

// ConfirmInput carries method-specific payment proof.
type ConfirmInput struct {
	PurchaseID        string
	RazorpayPaymentID string
	RazorpaySignature string
	UPITransactionID  string
}

// ConfirmResult is the completed purchase and its download link.
type ConfirmResult struct {
	Purchase    domain.Purchase
	DownloadURL string
}

// DownloadResult streams one purchased PDF.
type DownloadResult struct {
	Filename string
	Content  io.ReadCloser
}

// CreateIntent records a pending purchase with a fresh download token and
// returns the gateway payment data.
func (a *App) CreateIntent(ctx context.Context, in IntentInput) (IntentResult, error) {
	if !validEmail(in.Email) {
		return IntentResult{}, invalid("valid email required")
	}
	switch in.Method {
	case domain.MethodRazorpay, domain.MethodUPI:
	default:
		return IntentResult{}, invalid("unknown payment method")
	}
	product, ok, err := a.store.GetProduct(in.ProductID)
	if err != nil {
		return IntentResult{}, err
	}
	if !ok || !product.Orderable() {
		return IntentResult{}, ErrProductNotFound
	}

	data, err := a.payments.Prepare(payment.Request{
		Amount:       product.Price,
		Method:       in.Method,
		ProductID:    product.ID,
		ProductTitle: product.Title,
		Email:        strings.TrimSpace(in.Email),
	})
	if err != nil {
		return IntentResult{}, fmt.Errorf("prepare payment: %w", err)
	}

	now := a.now()
	purchase := domain.Purchase{
		ID:              util.NewID(),
		Email:           strings.TrimSpace(in.Email),
		ProductID:       product.ID,
		ProductTitle:    product.Title,
		Price:           product.Price,
		PaymentMethod:   in.Method,
		PaymentStatus:   domain.PaymentPending,
		RazorpayOrderID: data.RazorpayOrderID,
		GatewayMeta:     data.Meta,
		DownloadToken:   uuid.NewString(),
		ExpiresAt:       now.Add(a.downloadWindow),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.SavePurchase(purchase); err != nil {
		return IntentResult{}, fmt.Errorf("save purchase: %w", err)
	}
	return IntentResult{Purchase: purchase, Payment: data}, nil
}

// Confirm verifies payment proof and completes the purchase. Verification is
// method specific: razorpay proof is checked against the gateway HMAC when a
// secret is configured and accepted unverified otherwise; upi transaction ids
// are accepted at face value.
func (a *App) Confirm(ctx context.Context, in ConfirmInput) (ConfirmResult, error) {
	purchase, ok, err := a.store.GetPurchase(strings.TrimSpace(in.PurchaseID))
	if err != nil {
		return ConfirmResult{}, err
	}
	if !ok {
		return ConfirmResult{}, ErrPurchaseNotFound
	}

	switch purchase.PaymentMethod {
	case domain.MethodRazorpay:
		if a.payments.SecretConfigured() {
			if in.RazorpayPaymentID == "" || in.RazorpaySignature == "" {
				return ConfirmResult{}, invalid("payment id and signature required")
			}
			if !a.payments.VerifySignature(purchase.RazorpayOrderID, in.RazorpayPaymentID, in.RazorpaySignature) {
				return ConfirmResult{}, ErrInvalidProof
			}
		}
		purchase.RazorpayPaymentID = strings.TrimSpace(in.RazorpayPaymentID)
	case domain.MethodUPI:
		if strings.TrimSpace(in.UPITransactionID) == "" {
			return ConfirmResult{}, invalid("transaction id required")
		}
		purchase.UPITransactionID = strings.TrimSpace(in.UPITransactionID)
	default:
		return ConfirmResult{}, invalid("unknown payment method")
	}

	purchase.PaymentStatus = domain.PaymentCompleted
	purchase.UpdatedAt = a.now()
	if err := a.store.SavePurchase(purchase); err != nil {
		return ConfirmResult{}, fmt.Errorf("save purchase: %w", err)
	}
	if err := a.store.IncrementProductDownloads(purchase.ProductID); err != nil {
		slog.Warn("increment product downloads failed", "productId", purchase.ProductID, "error", err)
	}

	downloadURL := a.downloadURL(purchase.DownloadToken)
	a.enqueueEmail(ctx, mail.DownloadEmail(purchase.Email, purchase.ProductTitle, downloadURL, purchase.ExpiresAt))
	return ConfirmResult{Purchase: purchase, DownloadURL: downloadURL}, nil
}

// Download resolves a token through the download gate and opens the file.
// The purchase download counter is incremented before streaming begins.
func (a *App) Download(ctx context.Context, token string) (DownloadResult, error) {
	purchase, ok, err := a.store.GetCompletedPurchaseByToken(strings.TrimSpace(token))
	if err != nil {
		return DownloadResult{}, err
	}
	if !ok {
		return DownloadResult{}, ErrDownloadNotFound
	}
	if a.now().After(purchase.ExpiresAt) {
		return DownloadResult{}, ErrDownloadExpired
	}
	product, found, err := a.store.GetProduct(purchase.ProductID)
	if err != nil {
		return DownloadResult{}, err
	}
	if !found || product.FilePath == "" {
		return DownloadResult{}, ErrDownloadNotFound
	}
	content, err := a.blobs.Open(ctx, product.FilePath)
	if err != nil {
		if err == storage.ErrNotFound {
			return DownloadResult{}, ErrDownloadNotFound
		}
		return DownloadResult{}, fmt.Errorf("open file: %w", err)
	}
	if err := a.store.IncrementPurchaseDownloads(purchase.ID); err != nil {
		slog.Warn("increment purchase downloads failed", "purchaseId", purchase.ID, "error", err)
	}
	return DownloadResult{
		Filename: downloadFilename(purchase.ProductTitle),
		Content:  content,
	}, nil
}

// History lists completed purchases for one buyer, newest first.
func (a *App) History(email string) ([]domain.Purchase, error) {
	if !validEmail(email) {
		return nil, invalid("valid email required")
	}
	return a.store.ListCompletedPurchasesByEmail(strings.TrimSpace(email))
}

// ListPurchases returns the full purchase ledger for the admin panel.
func (a *App) ListPurchases() ([]domain.Purchase, error) {
	return a.store.ListPurchases()
}

// SendPaymentEmail mails manual UPI payment instructions for a product.
func (a *App) SendPaymentEmail(ctx context.Context, email, productID string) error {
	if !validEmail(email) {
		return invalid("valid email required")
	}
	product, ok, err := a.store.GetProduct(productID)
	if err != nil {
		return err
	}
	if !ok || !product.Orderable() {
		return ErrProductNotFound
	}
	data, err := a.payments.Prepare(payment.Request{
		Amount:       product.Price,
		Method:       domain.MethodUPI,
		ProductID:    product.ID,
		ProductTitle: product.Title,
		Email:        strings.TrimSpace(email),
	})
	if err != nil {
		return fmt.Errorf("prepare payment: %w", err)
	}
	a.enqueueEmail(ctx, mail.PaymentOptionsEmail(strings.TrimSpace(email), product.Title, product.Price, a.payments.UPIID(), data.UPIQRCode))
	return nil
}

func (a *App) downloadURL(token string) string {
	return a.baseURL + "/api/purchase/download/" + token
}

// enqueueEmail never fails the caller; delivery problems only get logged.
func (a *App) enqueueEmail(ctx context.Context, msg mail.Message) {
	if _, err := a.emails.Enqueue(ctx, msg); err != nil {
		slog.Warn("enqueue email failed", "to", msg.To, "subject", msg.Subject, "error", err)
	}
}

func downloadFilename(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "download"
	}
	return name + ".pdf"
}
