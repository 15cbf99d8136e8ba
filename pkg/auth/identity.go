package auth

import (
	"strings"

	"communitychat/pkg/config"
)

// caller role
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleFrontend:
		return "frontend"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

// security config
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
	// StorePath is the collection frontend callers may read and write.
	StorePath string
}

// Open reports whether keyless callers act as frontend. Chat is
// anonymous, so a store without frontend keys is open to everyone.
func (c SecConfig) Open() bool {
	return len(c.FrontendKeys) == 0
}

// FromConfig builds the gateway settings from the service config.
func FromConfig(cfg *config.Config) SecConfig {
	return SecConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		RPS:            cfg.Server.RateLimit.RPS,
		Burst:          cfg.Server.RateLimit.Burst,
		IPWhitelist:    cfg.Server.IPWhitelist,
		FrontendKeys:   keySet(cfg.Server.APIKeys.Frontend),
		AdminKeys:      keySet(cfg.Server.APIKeys.Admin),
		StorePath:      strings.Trim(cfg.Storage.Path, "/"),
	}
}

func keySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}
