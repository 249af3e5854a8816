package app

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	DatabaseFile string `env:"GATEHOUSE_DATABASE_FILE" envDefault:"gatehouse.db"`
	PepperFile   string `env:"GATEHOUSE_PEPPER_FILE" envDefault:"pepper"`

	// Fingerprint flags. Resume tokens and CSRF tokens share these, so
	// flipping one invalidates all outstanding tokens at once.
	FingerprintRemoteAddr bool `env:"GATEHOUSE_FP_REMOTE_ADDR" envDefault:"true"`
	FingerprintUserAgent  bool `env:"GATEHOUSE_FP_USER_AGENT" envDefault:"true"`
	FingerprintHost       bool `env:"GATEHOUSE_FP_HOST" envDefault:"false"`

	ResumeTokenTTL time.Duration `env:"GATEHOUSE_RESUME_TTL" envDefault:"720h"`
	ResetTokenTTL  time.Duration `env:"GATEHOUSE_RESET_TTL" envDefault:"2h"`
	ResetURL       string        `env:"GATEHOUSE_RESET_URL" envDefault:"http://localhost/reset"`

	// ThrottleEnforce turns the recorded cooldown deadline into a hard
	// login gate. Off by default: historically the deadline was computed
	// and stored but never checked.
	ThrottleEnforce           bool `env:"GATEHOUSE_THROTTLE_ENFORCE" envDefault:"false"`
	ThrottleAttemptsPerMinute int  `env:"GATEHOUSE_THROTTLE_ATTEMPTS" envDefault:"5"`
	ThrottleBurst             int  `env:"GATEHOUSE_THROTTLE_BURST" envDefault:"5"`

	HousekeepingInterval time.Duration `env:"GATEHOUSE_HOUSEKEEPING_INTERVAL" envDefault:"1h"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	// SMTP settings; with an empty host the reset flow logs instead of
	// mailing.
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"no-reply@localhost"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
