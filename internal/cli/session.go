package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"communitychat/pkg/chat"
	"communitychat/pkg/kv"
	"communitychat/pkg/logger"
	"communitychat/pkg/present"
	"communitychat/pkg/realtime"
)

// session is one open connection to the store plus the local identity.
type session struct {
	profile *Profile
	engine  *chat.Engine
	db      *realtime.RemoteDB
	local   *kv.Pebble
}

// profileFor loads the profile and applies env and flag overrides.
func profileFor(cmd *cobra.Command) (*Profile, string, error) {
	path, _ := cmd.Flags().GetString("profile")
	if path == "" {
		path = DefaultProfilePath()
	}
	p, err := LoadProfile(path)
	if err != nil {
		return nil, path, err
	}
	p.ApplyEnv(os.Getenv)
	for flag, key := range map[string]string{"server": "server", "api-key": "api_key", "state-dir": "state_dir", "locale": "locale"} {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			if err := p.Set(key, v); err != nil {
				return nil, path, err
			}
		}
	}
	if err := p.Validate(); err != nil {
		return nil, path, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, path, nil
}

func openSession(cmd *cobra.Command) (*session, error) {
	p, _, err := profileFor(cmd)
	if err != nil {
		return nil, err
	}
	level := p.LogLevel
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = "debug"
	}
	logger.InitWriter(cmd.ErrOrStderr(), level)

	if err := os.MkdirAll(p.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	local, err := kv.OpenPebble(p.StateDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open state dir %s (is another chatctl running?): %w", p.StateDir, err)
	}
	db, err := realtime.NewRemote(p.Server, realtime.RemoteOptions{APIKey: p.APIKey})
	if err != nil {
		local.Close()
		return nil, err
	}
	period, _ := p.CooldownPeriod()
	loc, _ := present.LocaleFor(p.Locale)
	engine, err := chat.New(db, local, chat.Options{
		Cooldown:   period,
		Locale:     loc,
		Location:   time.Local,
		MaxNameLen: p.MaxNameLen,
	})
	if err != nil {
		db.Close()
		local.Close()
		return nil, err
	}
	return &session{profile: p, engine: engine, db: db, local: local}, nil
}

func (s *session) Close() error {
	return errors.Join(s.db.Close(), s.local.Close())
}
