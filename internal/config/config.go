package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	BaseURL  string `yaml:"baseURL"`

	// Empty databaseURL selects the in-memory store.
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	CORSOrigin string `yaml:"corsOrigin"`

	// AdminEmails is a comma-separated allow-list of admin accounts.
	AdminEmails       string `yaml:"adminEmails"`
	AdminPasswordHash string `yaml:"adminPasswordHash"`
	AdminTokenSecret  string `yaml:"adminTokenSecret"`
	AdminTokenTTL     string `yaml:"adminTokenTTL"`

	SMTPHost     string `yaml:"smtpHost"`
	SMTPPort     int    `yaml:"smtpPort"`
	SMTPUsername string `yaml:"smtpUsername"`
	SMTPPassword string `yaml:"smtpPassword"`
	SMTPFrom     string `yaml:"smtpFrom"`

	RazorpayKeyID     string `yaml:"razorpayKeyId"`
	RazorpayKeySecret string `yaml:"razorpayKeySecret"`
	Currency          string `yaml:"currency"`
	UPIID             string `yaml:"upiId"`
	UPIMerchantName   string `yaml:"upiMerchantName"`

	StorageBackend string `yaml:"storageBackend"`
	UploadsDir     string `yaml:"uploadsDir"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	EmailStream     string `yaml:"emailStream"`
	EmailGroup      string `yaml:"emailGroup"`
	EmailWorkers    int    `yaml:"emailWorkers"`
	EmailMaxRetries int    `yaml:"emailMaxRetries"`

	ContactRateLimitPerMinute    int `yaml:"contactRateLimitPerMinute"`
	NewsletterRateLimitPerMinute int `yaml:"newsletterRateLimitPerMinute"`
	LoginRateLimitPerMinute      int `yaml:"loginRateLimitPerMinute"`
	PurchaseRateLimitPerMinute   int `yaml:"purchaseRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		cfg.CORSOrigin = strings.TrimSpace(v)
	}
	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		cfg.AdminEmails = strings.TrimSpace(v)
	}
	if v := os.Getenv("ADMIN_PASSWORD_HASH"); v != "" {
		cfg.AdminPasswordHash = strings.TrimSpace(v)
	}
	if v := os.Getenv("ADMIN_TOKEN_SECRET"); v != "" {
		cfg.AdminTokenSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("ADMIN_TOKEN_TTL"); v != "" {
		cfg.AdminTokenTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTPHost = strings.TrimSpace(v)
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SMTPPort = n
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTPUsername = strings.TrimSpace(v)
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTPPassword = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.SMTPFrom = strings.TrimSpace(v)
	}
	if v := os.Getenv("RAZORPAY_KEY_ID"); v != "" {
		cfg.RazorpayKeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("RAZORPAY_KEY_SECRET"); v != "" {
		cfg.RazorpayKeySecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("UPI_ID"); v != "" {
		cfg.UPIID = strings.TrimSpace(v)
	}
	if v := os.Getenv("UPI_MERCHANT_NAME"); v != "" {
		cfg.UPIMerchantName = strings.TrimSpace(v)
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("UPLOADS_DIR"); v != "" {
		cfg.UploadsDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "disk"
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = "uploads"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.EmailWorkers <= 0 {
		cfg.EmailWorkers = 2
	}
	if cfg.ContactRateLimitPerMinute == 0 {
		cfg.ContactRateLimitPerMinute = 10
	}
	if cfg.NewsletterRateLimitPerMinute == 0 {
		cfg.NewsletterRateLimitPerMinute = 10
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = 5
	}
	if cfg.PurchaseRateLimitPerMinute == 0 {
		cfg.PurchaseRateLimitPerMinute = 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if strings.TrimSpace(cfg.AdminEmails) == "" {
		return errors.New("config: adminEmails is required (set in config.yaml or ADMIN_EMAILS)")
	}
	if strings.TrimSpace(cfg.AdminPasswordHash) == "" {
		return errors.New("config: adminPasswordHash is required (set in config.yaml or ADMIN_PASSWORD_HASH)")
	}
	if strings.TrimSpace(cfg.AdminTokenSecret) == "" {
		return errors.New("config: adminTokenSecret is required (set in config.yaml or ADMIN_TOKEN_SECRET)")
	}
	switch cfg.StorageBackend {
	case "disk":
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minio backend requires minioEndpoint, minioAccessKey, minioSecretKey and minioBucket")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (want disk or minio)", cfg.StorageBackend)
	}
	if cfg.ContactRateLimitPerMinute < 0 || cfg.NewsletterRateLimitPerMinute < 0 ||
		cfg.LoginRateLimitPerMinute < 0 || cfg.PurchaseRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if _, err := ParseAdminTokenTTL(cfg.AdminTokenTTL); err != nil {
		return err
	}
	return nil
}

// ParseAdminTokenTTL parses the optional admin session lifetime.
func ParseAdminTokenTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid adminTokenTTL duration: %w", err)
	}
	return dur, nil
}
