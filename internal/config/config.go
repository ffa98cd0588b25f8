package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort       = 2333
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "letterspace"
	defaultDBCharset  = "utf8mb4"

	defaultTokenTTL             = 24 * time.Hour
	defaultSendTimeout          = 10 * time.Second
	defaultMaxSendAttempts      = 4
	defaultBackoffBase          = 500 * time.Millisecond
	defaultBackoffCap           = 30 * time.Second
	defaultBroadcastConcurrency = 8
	defaultLeaseTTL             = 2 * time.Minute
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "2h". Bare numbers are taken as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig holds runtime configuration loaded from YAML. It is resolved once
// at startup and passed explicitly to every component constructor.
type AppConfig struct {
	Port     int            `yaml:"port"`
	Env      string         `yaml:"env"` // "development" | "production"
	BaseURL  string         `yaml:"base_url"`
	DSN      string         `yaml:"dsn"`
	Database DatabaseConfig `yaml:"database"`
	RedisURL string         `yaml:"redis_url"`
	AdminKey string         `yaml:"admin_key"`

	Token    TokenConfig    `yaml:"token"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Mail     MailConfig     `yaml:"mail"`

	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig assembles a MySQL DSN when `dsn` is not given whole.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
}

// TokenConfig configures the confirmation token codec.
type TokenConfig struct {
	Secret string   `yaml:"secret"`
	TTL    Duration `yaml:"ttl"`
}

// DeliveryConfig configures the email delivery pipeline.
type DeliveryConfig struct {
	MaxAttempts          int      `yaml:"max_attempts"`
	BackoffBase          Duration `yaml:"backoff_base"`
	BackoffCap           Duration `yaml:"backoff_cap"`
	SendTimeout          Duration `yaml:"send_timeout"`
	BroadcastConcurrency int      `yaml:"broadcast_concurrency"`
	LeaseTTL             Duration `yaml:"lease_ttl"`
}

// MailConfig holds mail provider settings.
type MailConfig struct {
	Enable    bool   `yaml:"enable"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	From      string `yaml:"from"`
	ReplyTo   string `yaml:"reply_to"`
	UseResend bool   `yaml:"use_resend"`
	ResendKey string `yaml:"resend_key"`
	SiteName  string `yaml:"site_name"`
}

// Load reads the YAML config file and applies defaults. A missing file is not
// an error; the defaults describe a local development setup.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env != "production" }

func (c *AppConfig) normalize() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = defaultEnv
	}
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.DSN == "" {
		c.DSN = c.Database.dsn()
	}

	if c.Token.TTL <= 0 {
		c.Token.TTL = Duration(defaultTokenTTL)
	}

	d := &c.Delivery
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = defaultMaxSendAttempts
	}
	if d.BackoffBase <= 0 {
		d.BackoffBase = Duration(defaultBackoffBase)
	}
	if d.BackoffCap <= 0 {
		d.BackoffCap = Duration(defaultBackoffCap)
	}
	if d.SendTimeout <= 0 {
		d.SendTimeout = Duration(defaultSendTimeout)
	}
	if d.BroadcastConcurrency <= 0 {
		d.BroadcastConcurrency = defaultBroadcastConcurrency
	}
	if d.LeaseTTL <= 0 {
		d.LeaseTTL = Duration(defaultLeaseTTL)
	}

	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.User
	}
}

func (dc DatabaseConfig) dsn() string {
	host := dc.Host
	if host == "" {
		host = defaultDBHost
	}
	port := dc.Port
	if port == 0 {
		port = defaultDBPort
	}
	user := dc.User
	if user == "" {
		user = defaultDBUser
	}
	pass := dc.Password
	if pass == "" {
		pass = defaultDBPassword
	}
	name := dc.Name
	if name == "" {
		name = defaultDBName
	}
	charset := dc.Charset
	if charset == "" {
		charset = defaultDBCharset
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		user, pass, host, port, name, charset)
}
