package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// InsecureJWTSecret is the built in secret. It is only accepted in development.
const InsecureJWTSecret = "supersecretkey"

type Config struct {
	Env           string        `yaml:"env"`
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	APITimeout    time.Duration `yaml:"timeout"`
	DatabasePath  string        `yaml:"database_path"`
	TokenDuration time.Duration `yaml:"token_duration"`
	SiteName      string        `yaml:"site_name"`
	Domain        string        `yaml:"domain"`
	CORSOrigins   []string      `yaml:"cors_origins"`

	Worker    WorkerConfig    `yaml:"worker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Mail      MailConfig      `yaml:"mail"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type WorkerConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	// Lease is how long a job may stay running before it is requeued.
	Lease       time.Duration `yaml:"lease"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

type SchedulerConfig struct {
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	PurgeInterval    time.Duration `yaml:"purge_interval"`
}

type MailConfig struct {
	// Transport is "smtp" or "log".
	Transport string        `yaml:"transport"`
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	From      string        `yaml:"from"`
	Timeout   time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Root      string `yaml:"root"`
	BaseURL   string `yaml:"base_url"`
	MaxUpload int64  `yaml:"max_upload"`
}

type RetentionConfig struct {
	SentReminders       time.Duration `yaml:"sent_reminders"`
	DeletedApplications time.Duration `yaml:"deleted_applications"`
}

// RateLimitConfig enables the Redis backed limiter when RedisAddr is set.
type RateLimitConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Requests      int           `yaml:"requests"`
	Window        time.Duration `yaml:"window"`
}

// LoadConfig builds the configuration from defaults, a .env file in the
// working directory, APPTRACK_* environment variables and finally the YAML
// file at path when path is not empty.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Env:           getEnv("APPTRACK_ENV", "production"),
		Addr:          getEnv("APPTRACK_ADDR", ":8080"),
		JWTSecret:     getEnv("APPTRACK_JWT_SECRET", InsecureJWTSecret),
		APITimeout:    15 * time.Second,
		DatabasePath:  getEnv("APPTRACK_DATABASE_PATH", "apptrack.db"),
		TokenDuration: 24 * time.Hour,
		SiteName:      getEnv("APPTRACK_SITE_NAME", "AppTrack"),
		Domain:        getEnv("APPTRACK_DOMAIN", "localhost:8080"),
		Mail: MailConfig{
			Transport: getEnv("APPTRACK_MAIL_TRANSPORT", "log"),
			Host:      getEnv("APPTRACK_SMTP_HOST", "localhost"),
			Port:      getEnvInt("APPTRACK_SMTP_PORT", 587),
			Username:  os.Getenv("APPTRACK_SMTP_USERNAME"),
			Password:  os.Getenv("APPTRACK_SMTP_PASSWORD"),
			From:      getEnv("APPTRACK_MAIL_FROM", "noreply@apptrack.local"),
		},
		Storage: StorageConfig{
			Root:    getEnv("APPTRACK_STORAGE_ROOT", "media"),
			BaseURL: getEnv("APPTRACK_STORAGE_BASE_URL", "/media"),
		},
		RateLimit: RateLimitConfig{
			RedisAddr:     os.Getenv("APPTRACK_REDIS_ADDR"),
			RedisPassword: os.Getenv("APPTRACK_REDIS_PASSWORD"),
		},
	}
	if origins := os.Getenv("APPTRACK_CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the config or APPTRACK_ENV selects the
// development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || os.Getenv("APPTRACK_ENV") == "development"
}

// Validate checks required settings and fills defaults for the optional
// sections.
func (c *Config) Validate() error {
	var problems []string
	if c.JWTSecret == "" {
		problems = append(problems, "jwt_secret is required")
	} else if c.JWTSecret == InsecureJWTSecret && !c.IsDevelopment() {
		problems = append(problems, "jwt_secret uses the insecure default; set APPTRACK_JWT_SECRET or env: development")
	}
	if c.Addr == "" {
		problems = append(problems, "addr is required")
	}
	if c.DatabasePath == "" {
		problems = append(problems, "database_path is required")
	}
	switch c.Mail.Transport {
	case "", "log":
		c.Mail.Transport = "log"
	case "smtp":
		if c.Mail.Host == "" || c.Mail.Port <= 0 {
			problems = append(problems, "mail.host and mail.port are required for the smtp transport")
		}
	default:
		problems = append(problems, fmt.Sprintf("mail.transport %q is not one of smtp, log", c.Mail.Transport))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}

	defDuration(&c.APITimeout, 15*time.Second)
	defDuration(&c.TokenDuration, 24*time.Hour)

	defInt(&c.Worker.Workers, 4)
	defDuration(&c.Worker.PollInterval, time.Second)
	defDuration(&c.Worker.JobTimeout, time.Minute)
	defDuration(&c.Worker.Lease, 10*time.Minute)
	defDuration(&c.Worker.BackoffBase, 30*time.Second)
	defDuration(&c.Worker.BackoffMax, 30*time.Minute)

	defDuration(&c.Scheduler.DispatchInterval, 5*time.Minute)
	defDuration(&c.Scheduler.CleanupInterval, 24*time.Hour)
	defDuration(&c.Scheduler.PurgeInterval, 24*time.Hour)

	defDuration(&c.Mail.Timeout, 10*time.Second)
	if c.Mail.From == "" {
		c.Mail.From = "noreply@apptrack.local"
	}

	if c.Storage.Root == "" {
		c.Storage.Root = "media"
	}
	if c.Storage.MaxUpload <= 0 {
		c.Storage.MaxUpload = 10 << 20
	}

	defDuration(&c.Retention.SentReminders, 30*24*time.Hour)
	defDuration(&c.Retention.DeletedApplications, 365*24*time.Hour)

	defInt(&c.RateLimit.Requests, 120)
	defDuration(&c.RateLimit.Window, time.Minute)

	if c.SiteName == "" {
		c.SiteName = "AppTrack"
	}
	return nil
}

func defDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func defInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
