package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	qrcode "github.com/skip2/go-qrcode"
	"pianolearn/pkg/domain"
)

// orderAPI matches the Razorpay SDK order client so tests can fake it.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Config holds gateway credentials and merchant UPI details. Empty Razorpay
// credentials put the bridge in degraded mode: no order is created and
// confirmation proceeds unverified.
type Config struct {
	RazorpayKeyID     string
	RazorpayKeySecret string
	Currency          string
	UPIID             string
	UPIMerchantName   string
}

// Request describes one payment to prepare.
type Request struct {
	Amount       float64
	Method       domain.PaymentMethod
	ProductID    string
	ProductTitle string
	Email        string
}

// Data is what the client needs to pay: a hosted gateway order for razorpay,
// or a deep-link URI plus QR image for upi.
type Data struct {
	RazorpayOrderID string            `json:"razorpayOrderId,omitempty"`
	RazorpayKeyID   string            `json:"razorpayKeyId,omitempty"`
	UPIString       string            `json:"upiString,omitempty"`
	UPIQRCode       string            `json:"upiQRCode,omitempty"`
	Meta            map[string]string `json:"-"`
}

// Bridge constructs gateway-specific payment data. It performs no persistence.
type Bridge struct {
	orders   orderAPI
	keyID    string
	secret   string
	currency string
	upiID    string
	upiName  string
}

// New builds a Bridge from config, connecting the Razorpay client only when
// credentials are present.
func New(cfg Config) *Bridge {
	b := &Bridge{
		keyID:    strings.TrimSpace(cfg.RazorpayKeyID),
		secret:   strings.TrimSpace(cfg.RazorpayKeySecret),
		currency: strings.TrimSpace(cfg.Currency),
		upiID:    strings.TrimSpace(cfg.UPIID),
		upiName:  strings.TrimSpace(cfg.UPIMerchantName),
	}
	if b.currency == "" {
		b.currency = "INR"
	}
	if b.upiID == "" {
		b.upiID = "merchant@upi"
	}
	if b.upiName == "" {
		b.upiName = "PianoLearn"
	}
	if b.keyID != "" && b.secret != "" {
		b.orders = razorpay.NewClient(b.keyID, b.secret).Order
	}
	return b
}

// Prepare produces the payment data for the chosen method.
func (b *Bridge) Prepare(req Request) (Data, error) {
	switch req.Method {
	case domain.MethodRazorpay:
		return b.prepareRazorpay(req)
	case domain.MethodUPI:
		return b.prepareUPI(req)
	default:
		return Data{}, fmt.Errorf("unsupported payment method %q", req.Method)
	}
}

func (b *Bridge) prepareRazorpay(req Request) (Data, error) {
	if b.orders == nil {
		// No credentials configured, degrade silently.
		return Data{}, nil
	}
	order, err := b.orders.Create(map[string]interface{}{
		"amount":   int64(req.Amount*100 + 0.5),
		"currency": b.currency,
		"receipt":  fmt.Sprintf("receipt_%d", time.Now().UnixMilli()),
		"notes": map[string]interface{}{
			"productId":     req.ProductID,
			"productTitle":  req.ProductTitle,
			"customerEmail": req.Email,
		},
	}, nil)
	if err != nil {
		return Data{}, fmt.Errorf("create razorpay order: %w", err)
	}
	orderID, _ := order["id"].(string)
	return Data{
		RazorpayOrderID: orderID,
		RazorpayKeyID:   b.keyID,
		Meta: map[string]string{
			"productId":     req.ProductID,
			"productTitle":  req.ProductTitle,
			"customerEmail": req.Email,
		},
	}, nil
}

func (b *Bridge) prepareUPI(req Request) (Data, error) {
	uri := b.upiURI(req.Amount, req.ProductTitle)
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return Data{}, fmt.Errorf("encode upi qr: %w", err)
	}
	return Data{
		UPIString: uri,
		UPIQRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

func (b *Bridge) upiURI(amount float64, title string) string {
	return fmt.Sprintf("upi://pay?pa=%s&pn=%s&am=%s&cu=%s&tn=%s",
		b.upiID,
		url.QueryEscape(b.upiName),
		strconv.FormatFloat(amount, 'f', -1, 64),
		b.currency,
		url.QueryEscape("Payment for "+title),
	)
}

// SecretConfigured reports whether signature verification is possible.
func (b *Bridge) SecretConfigured() bool {
	return b.secret != ""
}

// KeyID returns the configured Razorpay key id for client checkout.
func (b *Bridge) KeyID() string {
	return b.keyID
}

// UPIID returns the merchant VPA payments are addressed to.
func (b *Bridge) UPIID() string {
	return b.upiID
}

// VerifySignature recomputes the Razorpay HMAC over "orderID|paymentID" and
// compares it in constant time against the supplied signature.
func (b *Bridge) VerifySignature(orderID, paymentID, signature string) bool {
	if b.secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(b.secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
