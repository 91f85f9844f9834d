package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"pianolearn/pkg/domain"
	"pianolearn/pkg/payment"
)

func TestCreateIntentMintsUniqueTokens(t *testing.T) {
	ta := newTestApp(t, payment.Config{UPIID: "piano@ybl"})
	seedProduct(t, ta, domain.Product{})

	first, err := ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "prod-1", Method: domain.MethodUPI,
	})
	if err != nil {
		t.Fatalf("first intent: %v", err)
	}
	second, err := ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "prod-1", Method: domain.MethodUPI,
	})
	if err != nil {
		t.Fatalf("second intent: %v", err)
	}
	if first.Purchase.DownloadToken == second.Purchase.DownloadToken {
		t.Fatal("tokens must be unique per intent")
	}
	if first.Purchase.PaymentStatus != domain.PaymentPending {
		t.Fatalf("status = %q", first.Purchase.PaymentStatus)
	}
	wantExpiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	if diff := first.Purchase.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("expiry = %v, want ~%v", first.Purchase.ExpiresAt, wantExpiry)
	}
	if first.Payment.UPIString == "" || first.Payment.UPIQRCode == "" {
		t.Fatalf("payment data = %+v", first.Payment)
	}
}

func TestCreateIntentRejectsUnorderableProduct(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	seedProduct(t, ta, domain.Product{ID: "inactive", Status: domain.ProductInactive})

	_, err := ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "inactive", Method: domain.MethodUPI,
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("err = %v", err)
	}
	_, err = ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "missing", Method: domain.MethodUPI,
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateIntentValidatesInput(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	seedProduct(t, ta, domain.Product{})

	_, err := ta.CreateIntent(context.Background(), IntentInput{
		Email: "not-an-email", ProductID: "prod-1", Method: domain.MethodUPI,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: err = %v", err)
	}
	_, err = ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "prod-1", Method: "cash",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad method: err = %v", err)
	}
}

func TestConfirmUPICompletesAndNotifies(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	seedProduct(t, ta, domain.Product{})

	intent, err := ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "prod-1", Method: domain.MethodUPI,
	})
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	res, err := ta.Confirm(context.Background(), ConfirmInput{
		PurchaseID: intent.Purchase.ID, UPITransactionID: "txn-001",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Purchase.PaymentStatus != domain.PaymentCompleted {
		t.Fatalf("status = %q", res.Purchase.PaymentStatus)
	}
	if res.Purchase.UPITransactionID != "txn-001" {
		t.Fatalf("txn id = %q", res.Purchase.UPITransactionID)
	}
	wantURL := "http://shop.test/api/purchase/download/" + intent.Purchase.DownloadToken
	if res.DownloadURL != wantURL {
		t.Fatalf("download url = %q", res.DownloadURL)
	}
	product, _, err := ta.store.GetProduct("prod-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Downloads != 1 {
		t.Fatalf("product downloads = %d", product.Downloads)
	}
	sent := ta.emails.sent()
	if len(sent) != 1 || sent[0].To != "buyer@example.com" || !strings.Contains(sent[0].HTML, wantURL) {
		t.Fatalf("download email = %+v", sent)
	}
}

func TestConfirmUPIRequiresTransactionID(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	seedProduct(t, ta, domain.Product{})
	intent, _ := ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "prod-1", Method: domain.MethodUPI,
	})

	_, err := ta.Confirm(context.Background(), ConfirmInput{PurchaseID: intent.Purchase.ID})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	got, _, _ := ta.store.GetPurchase(intent.Purchase.ID)
	if got.PaymentStatus != domain.PaymentPending {
		t.Fatalf("status = %q, want pending", got.PaymentStatus)
	}
}

func TestConfirmRazorpayWrongSignatureStaysPending(t *testing.T) {
	ta := newTestApp(t, payment.Config{RazorpayKeyID: "k", RazorpayKeySecret: "shh"})
	seedProduct(t, ta, domain.Product{})
	intent := seedPendingRazorpay(t, ta, "order_1")

	_, err := ta.Confirm(context.Background(), ConfirmInput{
		PurchaseID:        intent.ID,
		RazorpayPaymentID: "pay_1",
		RazorpaySignature: "bogus",
	})
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("err = %v", err)
	}
	got, _, _ := ta.store.GetPurchase(intent.ID)
	if got.PaymentStatus != domain.PaymentPending {
		t.Fatalf("status = %q, want pending", got.PaymentStatus)
	}
	if len(ta.emails.sent()) != 0 {
		t.Fatal("no email may be sent on rejection")
	}
}

func TestConfirmRazorpayValidSignatureCompletes(t *testing.T) {
	ta := newTestApp(t, payment.Config{RazorpayKeyID: "k", RazorpayKeySecret: "shh"})
	seedProduct(t, ta, domain.Product{})
	intent := seedPendingRazorpay(t, ta, "order_1")

	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write([]byte("order_1|pay_1"))
	sig := hex.EncodeToString(mac.Sum(nil))

	res, err := ta.Confirm(context.Background(), ConfirmInput{
		PurchaseID:        intent.ID,
		RazorpayPaymentID: "pay_1",
		RazorpaySignature: sig,
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Purchase.PaymentStatus != domain.PaymentCompleted || res.Purchase.RazorpayPaymentID != "pay_1" {
		t.Fatalf("purchase = %+v", res.Purchase)
	}
}

func TestConfirmRazorpayWithoutSecretAcceptsUnverified(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	seedProduct(t, ta, domain.Product{})
	intent := seedPendingRazorpay(t, ta, "")

	res, err := ta.Confirm(context.Background(), ConfirmInput{PurchaseID: intent.ID})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Purchase.PaymentStatus != domain.PaymentCompleted {
		t.Fatalf("status = %q", res.Purchase.PaymentStatus)
	}
}

func TestDownloadFlow(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	seedProduct(t, ta, domain.Product{})
	intent, _ := ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "prod-1", Method: domain.MethodUPI,
	})

	// pending purchase: token resolves to not-found
	if _, err := ta.Download(context.Background(), intent.Purchase.DownloadToken); !errors.Is(err, ErrDownloadNotFound) {
		t.Fatalf("pending token: err = %v", err)
	}

	if _, err := ta.Confirm(context.Background(), ConfirmInput{
		PurchaseID: intent.Purchase.ID, UPITransactionID: "txn-1",
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	res, err := ta.Download(context.Background(), intent.Purchase.DownloadToken)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer res.Content.Close()
	if res.Filename != "Scales_Vol__1.pdf" {
		t.Fatalf("filename = %q", res.Filename)
	}
	data, err := io.ReadAll(res.Content)
	if err != nil || string(data) != "%PDF-fake" {
		t.Fatalf("content = %q err = %v", data, err)
	}
	got, _, _ := ta.store.GetPurchase(intent.Purchase.ID)
	if got.DownloadCount != 1 {
		t.Fatalf("download count = %d", got.DownloadCount)
	}

	if _, err := ta.Download(context.Background(), "no-such-token"); !errors.Is(err, ErrDownloadNotFound) {
		t.Fatalf("unknown token: err = %v", err)
	}
}

func TestDownloadExpiredTokenLeavesCounterUnchanged(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	seedProduct(t, ta, domain.Product{})
	now := time.Now().UTC()
	purchase := domain.Purchase{
		ID:            "pur-exp",
		Email:         "buyer@example.com",
		ProductID:     "prod-1",
		ProductTitle:  "Scales Vol. 1",
		Price:         500,
		PaymentMethod: domain.MethodUPI,
		PaymentStatus: domain.PaymentCompleted,
		DownloadToken: "expired-token",
		ExpiresAt:     now.Add(-time.Hour),
		CreatedAt:     now.Add(-31 * 24 * time.Hour),
		UpdatedAt:     now,
	}
	if err := ta.store.SavePurchase(purchase); err != nil {
		t.Fatalf("seed purchase: %v", err)
	}

	_, err := ta.Download(context.Background(), "expired-token")
	if !errors.Is(err, ErrDownloadExpired) {
		t.Fatalf("err = %v", err)
	}
	got, _, _ := ta.store.GetPurchase("pur-exp")
	if got.DownloadCount != 0 {
		t.Fatalf("download count = %d, want 0", got.DownloadCount)
	}
}

func TestHistoryListsCompletedOnly(t *testing.T) {
	ta := newTestApp(t, payment.Config{})
	seedProduct(t, ta, domain.Product{})

	first, _ := ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "prod-1", Method: domain.MethodUPI,
	})
	if _, err := ta.Confirm(context.Background(), ConfirmInput{
		PurchaseID: first.Purchase.ID, UPITransactionID: "txn-1",
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// second intent stays pending
	if _, err := ta.CreateIntent(context.Background(), IntentInput{
		Email: "buyer@example.com", ProductID: "prod-1", Method: domain.MethodUPI,
	}); err != nil {
		t.Fatalf("second intent: %v", err)
	}

	history, err := ta.History("buyer@example.com")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != first.Purchase.ID {
		t.Fatalf("history = %+v", history)
	}
	if _, err := ta.History("not-an-email"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: err = %v", err)
	}
}

func TestSendPaymentEmail(t *testing.T) {
	ta := newTestApp(t, payment.Config{UPIID: "piano@ybl"})
	seedProduct(t, ta, domain.Product{})

	if err := ta.SendPaymentEmail(context.Background(), "buyer@example.com", "prod-1"); err != nil {
		t.Fatalf("send payment email: %v", err)
	}
	sent := ta.emails.sent()
	if len(sent) != 1 || sent[0].To != "buyer@example.com" || !strings.Contains(sent[0].HTML, "piano@ybl") {
		t.Fatalf("sent = %+v", sent)
	}
	if err := ta.SendPaymentEmail(context.Background(), "buyer@example.com", "missing"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("missing product: err = %v", err)
	}
}

func seedPendingRazorpay(t *testing.T, ta *testApp, orderID string) domain.Purchase {
	t.Helper()
	now := time.Now().UTC()
	purchase := domain.Purchase{
		ID:              "pur-rzp",
		Email:           "buyer@example.com",
		ProductID:       "prod-1",
		ProductTitle:    "Scales Vol. 1",
		Price:           500,
		PaymentMethod:   domain.MethodRazorpay,
		PaymentStatus:   domain.PaymentPending,
		RazorpayOrderID: orderID,
		DownloadToken:   "rzp-token",
		ExpiresAt:       now.Add(30 * 24 * time.Hour),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := ta.store.SavePurchase(purchase); err != nil {
		t.Fatalf("seed purchase: %v", err)
	}
	return purchase
}
