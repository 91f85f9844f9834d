// Package app implements the storefront core: catalog management, the
// purchase ledger, the download gate, contact and newsletter handling.
package app

import (
	"crypto/subtle"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"pianolearn/pkg/notify"
	"pianolearn/pkg/payment"
	"pianolearn/pkg/storage"
	"pianolearn/pkg/store"
)

const defaultDownloadWindow = 30 * 24 * time.Hour

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Blobs       storage.BlobStore
	Payments    *payment.Bridge
	Emails      notify.Queue
	BaseURL     string
	// AdminEmails is a comma-separated allow-list. The first entry also
	// receives contact form notifications.
	AdminEmails       string
	AdminPasswordHash string
	MaxUploadBytes    int64
	DownloadWindow    time.Duration
}

// App is the core application service wiring together storage, payments and
// the notification queue.
type App struct {
	store             store.Store
	blobs             storage.BlobStore
	payments          *payment.Bridge
	emails            notify.Queue
	baseURL           string
	adminEmails       []string
	adminNotice       string
	adminPasswordHash string
	maxUploadBytes    int64
	downloadWindow    time.Duration
	now               func() time.Time
}

// New constructs the application. An empty DatabaseURL selects the in-memory
// store; the blob store and email queue are required.
func New(cfg Config) (*App, error) {
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if cfg.Emails == nil {
		return nil, fmt.Errorf("email queue required")
	}
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			dataStore = store.NewMemoryStore()
		} else {
			var err error
			dataStore, err = store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
		}
	}
	payments := cfg.Payments
	if payments == nil {
		payments = payment.New(payment.Config{})
	}
	window := cfg.DownloadWindow
	if window <= 0 {
		window = defaultDownloadWindow
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	admins := splitEmails(cfg.AdminEmails)
	notice := ""
	if len(admins) > 0 {
		notice = admins[0]
	}
	return &App{
		store:             dataStore,
		blobs:             cfg.Blobs,
		payments:          payments,
		emails:            cfg.Emails,
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		adminEmails:       admins,
		adminNotice:       notice,
		adminPasswordHash: cfg.AdminPasswordHash,
		maxUploadBytes:    maxUpload,
		downloadWindow:    window,
		now:               func() time.Time { return time.Now().UTC() },
	}, nil
}

func splitEmails(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MaxUploadBytes returns the upload size cap for multipart handlers.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// Payments exposes the payment bridge for read-only client configuration.
func (a *App) Payments() *payment.Bridge {
	return a.payments
}

// Authenticate checks admin credentials. The email must be on the configured
// allow-list; the shared password is compared against a bcrypt hash, or
// byte-for-byte when the configured value is not a bcrypt hash.
func (a *App) Authenticate(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return invalid("email and password required")
	}
	allowed := false
	for _, admin := range a.adminEmails {
		if strings.EqualFold(email, admin) {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidCredentials
	}
	if strings.HasPrefix(a.adminPasswordHash, "$2") {
		if err := bcrypt.CompareHashAndPassword([]byte(a.adminPasswordHash), []byte(password)); err != nil {
			return ErrInvalidCredentials
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(a.adminPasswordHash), []byte(password)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

func validEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}
