package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
	EnvTest = "test"

	DefaultHeartbeat = 30 * time.Second

	testPseudonymSecret = "wave-test-pseudonym-secret"
)

var ErrMissingPseudonymSecret = errors.New("pseudonym secret must be set outside the test environment")

type Config struct {
	ServerAddr        string
	DatabaseDSN       string
	PseudonymSecret   []byte
	SigningKey        []byte
	AllowedOrigins    []string
	Env               string
	AnthropicAPIKey   string
	HeartbeatInterval time.Duration
}

// Options holds the raw values collected from flags and the environment.
type Options struct {
	ServerAddr        string
	DatabaseDSN       string
	PseudonymSecret   string
	SigningKey        string // base64, optional
	AllowedOrigins    []string
	Env               string
	AnthropicAPIKey   string
	HeartbeatInterval time.Duration
}

// UsesDatabase reports whether the durable backend is configured.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseDSN != ""
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}

	env := opts.Env
	if env == "" {
		env = EnvDev
	}
	switch env {
	case EnvDev, EnvProd, EnvTest:
	default:
		return nil, fmt.Errorf("unknown environment %q", env)
	}

	secret := opts.PseudonymSecret
	if secret == "" {
		if env != EnvTest {
			return nil, ErrMissingPseudonymSecret
		}
		secret = testPseudonymSecret
	}

	var signingKey []byte
	if opts.SigningKey != "" {
		key, err := decodeSigningSecret(opts.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("decode signing secret: %w", err)
		}
		signingKey = key
	}

	heartbeat := opts.HeartbeatInterval
	if heartbeat == 0 {
		heartbeat = DefaultHeartbeat
	}
	if heartbeat < 0 {
		return nil, fmt.Errorf("heartbeat interval must be positive")
	}

	return &Config{
		ServerAddr:        opts.ServerAddr,
		DatabaseDSN:       opts.DatabaseDSN,
		PseudonymSecret:   []byte(secret),
		SigningKey:        signingKey,
		AllowedOrigins:    opts.AllowedOrigins,
		Env:               env,
		AnthropicAPIKey:   opts.AnthropicAPIKey,
		HeartbeatInterval: heartbeat,
	}, nil
}
