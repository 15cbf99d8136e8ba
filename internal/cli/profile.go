package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"communitychat/pkg/cooldown"
	"communitychat/pkg/identity"
	"communitychat/pkg/present"
)

// Profile holds the client settings kept between runs.
type Profile struct {
	Server     string `yaml:"server" json:"server"`
	APIKey     string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	StateDir   string `yaml:"state_dir" json:"state_dir"`
	Locale     string `yaml:"locale" json:"locale"`
	Cooldown   string `yaml:"cooldown" json:"cooldown"`
	MaxNameLen int    `yaml:"max_name_len" json:"max_name_len"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
}

const (
	defaultServer   = "http://127.0.0.1:8080"
	defaultLocale   = "en"
	defaultLogLevel = "warn"
)

// profileKeys are the names accepted by `config set`.
var profileKeys = []string{"server", "api_key", "state_dir", "locale", "cooldown", "max_name_len", "log_level"}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return h
	}
	return "."
}

// DefaultProfilePath is $HOME/.communitychat/chatctl.yaml.
func DefaultProfilePath() string {
	return filepath.Join(homeDir(), ".communitychat", "chatctl.yaml")
}

// DefaultProfile returns the settings used when no profile exists.
func DefaultProfile() *Profile {
	return &Profile{
		Server:     defaultServer,
		StateDir:   filepath.Join(homeDir(), ".communitychat", "state"),
		Locale:     defaultLocale,
		Cooldown:   cooldown.DefaultPeriod.String(),
		MaxNameLen: identity.MaxNameLen,
		LogLevel:   defaultLogLevel,
	}
}

// LoadProfile reads path over the defaults. A missing file is not an error.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return p, nil
}

// SaveProfile writes p to path, creating the directory.
func SaveProfile(p *Profile, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create profile dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// ApplyEnv overlays CHAT_SERVER and CHAT_API_KEY.
func (p *Profile) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("CHAT_SERVER")); v != "" {
		p.Server = v
	}
	if v := strings.TrimSpace(getenv("CHAT_API_KEY")); v != "" {
		p.APIKey = v
	}
}

// Set assigns one profile key from its string form.
func (p *Profile) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "server":
		p.Server = value
	case "api_key":
		p.APIKey = value
	case "state_dir":
		p.StateDir = value
	case "locale":
		p.Locale = value
	case "cooldown":
		p.Cooldown = value
	case "max_name_len":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_name_len: %w", err)
		}
		p.MaxNameLen = n
	case "log_level":
		p.LogLevel = value
	default:
		return fmt.Errorf("unknown key %q (known: %s)", key, strings.Join(profileKeys, ", "))
	}
	return p.Validate()
}

// Validate checks the values a session depends on.
func (p *Profile) Validate() error {
	if !strings.HasPrefix(p.Server, "http://") && !strings.HasPrefix(p.Server, "https://") {
		return fmt.Errorf("server must be an http(s) URL, got %q", p.Server)
	}
	if p.StateDir == "" {
		return errors.New("state_dir is empty")
	}
	if _, ok := present.LocaleFor(p.Locale); !ok {
		return fmt.Errorf("unknown locale %q", p.Locale)
	}
	if _, err := p.CooldownPeriod(); err != nil {
		return err
	}
	if p.MaxNameLen < 0 {
		return fmt.Errorf("max_name_len must not be negative")
	}
	return nil
}

// CooldownPeriod parses Cooldown. Empty selects the default.
func (p *Profile) CooldownPeriod() (time.Duration, error) {
	if p.Cooldown == "" {
		return cooldown.DefaultPeriod, nil
	}
	d, err := time.ParseDuration(p.Cooldown)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid cooldown %q", p.Cooldown)
	}
	return d, nil
}

// Masked returns a copy safe to print.
func (p Profile) Masked() Profile {
	if p.APIKey != "" {
		p.APIKey = maskKey(p.APIKey)
	}
	return p
}

func maskKey(k string) string {
	if len(k) <= 4 {
		return "****"
	}
	return k[:2] + strings.Repeat("*", len(k)-4) + k[len(k)-2:]
}
