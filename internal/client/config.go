package client

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultAuthScheme = "Token"
)

// TargetConfig describes one downstream service that receives entity changes.
type TargetConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`

	// Shared token sent as "<auth_scheme> <token>". TokenEnv takes precedence over Token.
	Token      string `yaml:"token"`
	TokenEnv   string `yaml:"token_env"`
	AuthScheme string `yaml:"auth_scheme"`

	// When a signing secret is set, short lived HS256 assertions are sent instead of the shared token.
	SigningSecretEnv string `yaml:"signing_secret_env"`

	TimeoutSeconds int                 `yaml:"timeout_seconds"`
	Entities       []models.EntityType `yaml:"entities"`
}

// TargetsFile is the sync targets configuration file.
type TargetsFile struct {
	Lanes   int            `yaml:"lanes"`
	Targets []TargetConfig `yaml:"targets"`
}

// LoadTargets reads and validates a sync targets file.
func LoadTargets(path string) (*TargetsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync targets: %w", err)
	}
	return ParseTargets(data)
}

// ParseTargets decodes and validates sync targets YAML.
func ParseTargets(data []byte) (*TargetsFile, error) {
	var tf TargetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse sync targets: %w", err)
	}

	seen := make(map[string]bool)
	for i := range tf.Targets {
		t := &tf.Targets[i]
		t.ApplyDefaults()
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("duplicate target %q", t.Name)
		}
		seen[t.Name] = true
	}

	if tf.Lanes <= 0 {
		tf.Lanes = outbox.DefaultLanes
	}

	return &tf, nil
}

func (t *TargetConfig) ApplyDefaults() {
	if t.AuthScheme == "" {
		t.AuthScheme = defaultAuthScheme
	}
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = int(defaultTimeout / time.Second)
	}
	if t.TokenEnv != "" {
		if v := os.Getenv(t.TokenEnv); v != "" {
			t.Token = v
		}
	}
}

func (t *TargetConfig) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	u, err := url.Parse(t.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target %q: base_url must be an absolute URL", t.Name)
	}
	if len(t.Entities) == 0 {
		return fmt.Errorf("target %q: at least one entity type is required", t.Name)
	}
	for _, et := range t.Entities {
		switch et {
		case models.EntityOrganization, models.EntityMembership, models.EntityUser:
		default:
			return fmt.Errorf("target %q: unknown entity type %q", t.Name, et)
		}
	}
	if t.Token == "" && t.SigningSecretEnv == "" {
		return fmt.Errorf("target %q: token, token_env or signing_secret_env is required", t.Name)
	}
	return nil
}

// Timeout returns the per request timeout.
func (t *TargetConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Registry builds the outbox subscriptions for the configured targets.
func (tf *TargetsFile) Registry() *outbox.Registry {
	reg := outbox.NewRegistry()
	for _, t := range tf.Targets {
		reg.Register(t.Name, t.Entities...)
	}
	return reg
}
