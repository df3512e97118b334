package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiry     time.Duration `envconfig:"JWT_EXPIRY" default:"168h"`
	RefreshExpiry time.Duration `envconfig:"REFRESH_EXPIRY" default:"720h"`

	// minimum notice a patient must give before startAt to cancel
	CancelCutoffMinutes int `envconfig:"CANCEL_CUTOFF_MINUTES" default:"60"`

	Port string `envconfig:"PORT" default:"8080"`

	// event publishing is disabled when AMQP_URL is empty
	AmqpURL      string `envconfig:"AMQP_URL"`
	AmqpExchange string `envconfig:"AMQP_EXCHANGE" default:"clinic.events"`
}

func Load() (Config, error) {
	var c Config
	err := envconfig.Process("", &c)
	return c, err
}
