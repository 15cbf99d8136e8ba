package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr    string
	DB      string
	Config  string
	Backend string
	Set     map[string]bool
}

// holds the merged configuration and where it came from
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	Source string // comma separated: "config", "env", "flags"
}

// parses command-line flags from args (usually os.Args[1:])
func ParseConfigFlags(args []string) (Flags, error) {
	fset := flag.NewFlagSet("communitychat", flag.ContinueOnError)
	addrPtr := fset.String("addr", ":8080", "HTTP listen address")
	dbPtr := fset.String("db", defaultDBPath, "Pebble DB path")
	cfgPtr := fset.String("config", "./config.yaml", "Path to config file")
	backendPtr := fset.String("backend", BackendPebble, "Store backend: memory, pebble or redis")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}

	// record which flags were set explicitly
	setFlags := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Backend: *backendPtr, Set: setFlags}, nil
}

// loads the config file named by flags or CHAT_CONFIG; found is false when
// the file does not exist
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// loads CHAT_* environment variables into a new Config; used reports
// whether any was set
func ParseConfigEnvs(getenv func(string) string) (*Config, bool, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	envs := map[string]string{
		"ADDR":              getenv("CHAT_ADDR"),
		"SERVER_ADDRESS":    getenv("CHAT_SERVER_ADDRESS"),
		"SERVER_PORT":       getenv("CHAT_SERVER_PORT"),
		"CORS_ORIGINS":      getenv("CHAT_CORS_ORIGINS"),
		"RATE_RPS":          getenv("CHAT_RATE_RPS"),
		"RATE_BURST":        getenv("CHAT_RATE_BURST"),
		"IP_WHITELIST":      getenv("CHAT_IP_WHITELIST"),
		"API_FRONTEND_KEYS": getenv("CHAT_API_FRONTEND_KEYS"),
		"API_ADMIN_KEYS":    getenv("CHAT_API_ADMIN_KEYS"),
		"MAX_BODY_SIZE":     getenv("CHAT_MAX_BODY_SIZE"),
		"MAX_WATCH_WAIT":    getenv("CHAT_MAX_WATCH_WAIT"),

		"STORAGE_BACKEND": getenv("CHAT_STORAGE_BACKEND"),
		"DB_PATH":         getenv("CHAT_DB_PATH"),
		"REDIS_URL":       getenv("CHAT_REDIS_URL"),
		"STORAGE_PATH":    getenv("CHAT_STORAGE_PATH"),

		"RETENTION_ENABLED":   getenv("CHAT_RETENTION_ENABLED"),
		"RETENTION_CRON":      getenv("CHAT_RETENTION_CRON"),
		"RETENTION_PERIOD":    getenv("CHAT_RETENTION_PERIOD"),
		"RETENTION_DRY_RUN":   getenv("CHAT_RETENTION_DRY_RUN"),
		"RETENTION_AUDIT_DIR": getenv("CHAT_RETENTION_AUDIT_DIR"),

		"LOG_LEVEL": getenv("CHAT_LOG_LEVEL"),
	}

	used := false
	for _, v := range envs {
		if v != "" {
			used = true
			break
		}
	}
	c := &Config{}

	if v := envs["ADDR"]; v != "" {
		host, port, err := splitAddr(v)
		if err != nil {
			return nil, used, fmt.Errorf("CHAT_ADDR: %w", err)
		}
		c.Server.Address, c.Server.Port = host, port
	} else {
		c.Server.Address = envs["SERVER_ADDRESS"]
		if v := envs["SERVER_PORT"]; v != "" {
			p, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, used, fmt.Errorf("CHAT_SERVER_PORT: %w", err)
			}
			c.Server.Port = p
		}
	}
	c.Server.CORS.AllowedOrigins = parseList(envs["CORS_ORIGINS"])
	c.Server.IPWhitelist = parseList(envs["IP_WHITELIST"])
	c.Server.APIKeys.Frontend = parseList(envs["API_FRONTEND_KEYS"])
	c.Server.APIKeys.Admin = parseList(envs["API_ADMIN_KEYS"])
	if v := envs["RATE_RPS"]; v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, used, fmt.Errorf("CHAT_RATE_RPS: %w", err)
		}
		c.Server.RateLimit.RPS = f
	}
	if v := envs["RATE_BURST"]; v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, used, fmt.Errorf("CHAT_RATE_BURST: %w", err)
		}
		c.Server.RateLimit.Burst = n
	}
	var err error
	if c.Server.MaxBodySize, err = parseSize(envs["MAX_BODY_SIZE"]); err != nil {
		return nil, used, fmt.Errorf("CHAT_MAX_BODY_SIZE: %w", err)
	}
	if c.Server.MaxWatchWait, err = parseDuration(envs["MAX_WATCH_WAIT"]); err != nil {
		return nil, used, fmt.Errorf("CHAT_MAX_WATCH_WAIT: %w", err)
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(envs["STORAGE_BACKEND"]))
	c.Storage.DBPath = envs["DB_PATH"]
	c.Storage.RedisURL = envs["REDIS_URL"]
	c.Storage.Path = envs["STORAGE_PATH"]

	c.Retention.Enabled = parseBool(envs["RETENTION_ENABLED"], false)
	c.Retention.Cron = envs["RETENTION_CRON"]
	if c.Retention.Period, err = parseDuration(envs["RETENTION_PERIOD"]); err != nil {
		return nil, used, fmt.Errorf("CHAT_RETENTION_PERIOD: %w", err)
	}
	c.Retention.DryRun = parseBool(envs["RETENTION_DRY_RUN"], false)
	c.Retention.AuditDir = envs["RETENTION_AUDIT_DIR"]

	c.Logging.Level = strings.TrimSpace(envs["LOG_LEVEL"])
	return c, used, nil
}

// LoadEffectiveConfig layers the sources: config file first, then
// environment overrides, then explicitly set flags.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envUsed bool) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}

	out := &Config{}
	var sources []string
	if fileExists && fileCfg != nil {
		*out = *fileCfg
		sources = append(sources, "config")
	}
	if envUsed && envCfg != nil {
		overlay(out, envCfg)
		sources = append(sources, "env")
	}

	flagsUsed := false
	if flags.Set["addr"] {
		host, port, err := splitAddr(flags.Addr)
		if err != nil {
			return res, fmt.Errorf("--addr: %w", err)
		}
		out.Server.Address, out.Server.Port = host, port
		flagsUsed = true
	}
	if flags.Set["db"] {
		out.Storage.DBPath = flags.DB
		flagsUsed = true
	}
	if flags.Set["backend"] {
		out.Storage.Backend = strings.ToLower(flags.Backend)
		flagsUsed = true
	}
	if flagsUsed {
		sources = append(sources, "flags")
	}
	if len(sources) == 0 {
		sources = append(sources, "defaults")
	}

	res.Config = out
	res.Addr = out.Addr()
	res.Source = strings.Join(sources, ",")
	return res, nil
}

// overlay copies every non-zero field of src onto dst.
func overlay(dst, src *Config) {
	setStr := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	setList := func(d *[]string, s []string) {
		if len(s) > 0 {
			*d = s
		}
	}
	setStr(&dst.Server.Address, src.Server.Address)
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	setList(&dst.Server.CORS.AllowedOrigins, src.Server.CORS.AllowedOrigins)
	if src.Server.RateLimit.RPS != 0 {
		dst.Server.RateLimit.RPS = src.Server.RateLimit.RPS
	}
	if src.Server.RateLimit.Burst != 0 {
		dst.Server.RateLimit.Burst = src.Server.RateLimit.Burst
	}
	setList(&dst.Server.IPWhitelist, src.Server.IPWhitelist)
	setList(&dst.Server.APIKeys.Frontend, src.Server.APIKeys.Frontend)
	setList(&dst.Server.APIKeys.Admin, src.Server.APIKeys.Admin)
	if src.Server.MaxBodySize != 0 {
		dst.Server.MaxBodySize = src.Server.MaxBodySize
	}
	if src.Server.MaxWatchWait != 0 {
		dst.Server.MaxWatchWait = src.Server.MaxWatchWait
	}

	setStr(&dst.Storage.Backend, src.Storage.Backend)
	setStr(&dst.Storage.DBPath, src.Storage.DBPath)
	setStr(&dst.Storage.RedisURL, src.Storage.RedisURL)
	setStr(&dst.Storage.Path, src.Storage.Path)

	if src.Retention.Enabled {
		dst.Retention.Enabled = true
	}
	setStr(&dst.Retention.Cron, src.Retention.Cron)
	if src.Retention.Period != 0 {
		dst.Retention.Period = src.Retention.Period
	}
	if src.Retention.DryRun {
		dst.Retention.DryRun = true
	}
	setStr(&dst.Retention.AuditDir, src.Retention.AuditDir)

	setStr(&dst.Logging.Level, src.Logging.Level)
}

func parseList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// splitAddr accepts "host:port", ":port" or a bare host.
func splitAddr(a string) (string, int, error) {
	a = strings.TrimSpace(a)
	h, p, err := net.SplitHostPort(a)
	if err != nil {
		return a, 0, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", p)
	}
	return h, port, nil
}
