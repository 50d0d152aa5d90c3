package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	JWTIssuer      string        `mapstructure:"JWT_ISSUER"`
	TokenTTL       time.Duration `mapstructure:"TOKEN_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	MoMo  MoMoConfig  `mapstructure:",squash"`
	VNPay VNPayConfig `mapstructure:",squash"`
}

// MoMoConfig holds the MoMo wallet gateway credentials.
type MoMoConfig struct {
	Endpoint    string `mapstructure:"MOMO_ENDPOINT"`
	PartnerCode string `mapstructure:"MOMO_PARTNER_CODE"`
	AccessKey   string `mapstructure:"MOMO_ACCESS_KEY"`
	SecretKey   string `mapstructure:"MOMO_SECRET_KEY"`
	RedirectURL string `mapstructure:"MOMO_REDIRECT_URL"`
	IPNURL      string `mapstructure:"MOMO_IPN_URL"`
}

// VNPayConfig holds the VNPay gateway credentials.
type VNPayConfig struct {
	PayURL     string `mapstructure:"VNPAY_PAY_URL"`
	TmnCode    string `mapstructure:"VNPAY_TMN_CODE"`
	HashSecret string `mapstructure:"VNPAY_HASH_SECRET"`
	ReturnURL  string `mapstructure:"VNPAY_RETURN_URL"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "JWT_ISSUER", "TOKEN_TTL", "CORS_ORIGINS", "BODY_LIMIT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"MOMO_ENDPOINT", "MOMO_PARTNER_CODE", "MOMO_ACCESS_KEY", "MOMO_SECRET_KEY",
	"MOMO_REDIRECT_URL", "MOMO_IPN_URL",
	"VNPAY_PAY_URL", "VNPAY_TMN_CODE", "VNPAY_HASH_SECRET", "VNPAY_RETURN_URL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_ISSUER", "hms")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("MOMO_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api/create")
	v.SetDefault("VNPAY_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: requests without a bearer token are treated as admin.")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret is mandatory. A payment gateway is either fully configured or
// not configured at all.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}

	if c.MoMo.PartnerCode != "" || c.MoMo.AccessKey != "" || c.MoMo.SecretKey != "" {
		if c.MoMo.PartnerCode == "" || c.MoMo.AccessKey == "" || c.MoMo.SecretKey == "" {
			return fmt.Errorf("MOMO_PARTNER_CODE, MOMO_ACCESS_KEY and MOMO_SECRET_KEY must be set together")
		}
	}
	if c.VNPay.TmnCode != "" || c.VNPay.HashSecret != "" {
		if c.VNPay.TmnCode == "" || c.VNPay.HashSecret == "" {
			return fmt.Errorf("VNPAY_TMN_CODE and VNPAY_HASH_SECRET must be set together")
		}
	}
	return nil
}

// SigningKey returns the HMAC key for issuing and verifying tokens. Development
// mode falls back to a fixed key so the server starts without setup.
func (c *Config) SigningKey() []byte {
	if c.JWTSecret == "" && c.IsDev() {
		return []byte("hms-development-secret")
	}
	return []byte(c.JWTSecret)
}

// MoMoEnabled reports whether MoMo credentials are configured.
func (c *Config) MoMoEnabled() bool {
	return c.MoMo.PartnerCode != "" && c.MoMo.SecretKey != ""
}

// VNPayEnabled reports whether VNPay credentials are configured.
func (c *Config) VNPayEnabled() bool {
	return c.VNPay.TmnCode != "" && c.VNPay.HashSecret != ""
}
