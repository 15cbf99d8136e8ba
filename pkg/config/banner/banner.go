package banner

import (
	"fmt"

	"communitychat/pkg/config"
	"communitychat/pkg/logger"
)

const banner = `
  ___                              _ _         ___ _         _
 / __|___ _ __  _ __ _  _ _ _  (_) |_ _  _ / __| |_  __ _| |_
| (__/ _ \ '  \| '  \ || | ' \ | |  _| || | (__| ' \/ _' |  _|
 \___\___/_|_|_|_|_|_\_,_|_||_||_|\__|\_, |\___|_||_\__,_|\__|
                                      |__/
`

// PrintWithEff prints the banner, the effective settings and a short
// production readiness checklist.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	fmt.Print(banner)
	if eff.Config == nil {
		return
	}
	items := eff.Config.Summary()
	items = append(items, "source: "+eff.Source)
	if version != "" {
		items = append(items, "version: "+version)
	}
	logger.LogConfigSummary("config", items)

	var checks []string
	if fe := len(eff.Config.Server.APIKeys.Frontend); fe > 0 {
		checks = append(checks, fmt.Sprintf("Frontend API keys: OK (%d)", fe))
	} else {
		checks = append(checks, "Frontend API keys: MISSING (store is open to any client)")
	}
	if ak := len(eff.Config.Server.APIKeys.Admin); ak > 0 {
		checks = append(checks, fmt.Sprintf("Admin API keys: OK (%d)", ak))
	} else {
		checks = append(checks, "Admin API keys: MISSING (admin routes disabled)")
	}
	if eff.Config.Storage.Backend == config.BackendMemory {
		checks = append(checks, "Storage: memory (messages are lost on restart)")
	} else {
		checks = append(checks, "Storage: "+eff.Config.Storage.Backend)
	}
	if eff.Config.Retention.Enabled {
		checks = append(checks, "Retention: enabled (cron="+eff.Config.Retention.Cron+")")
	} else {
		checks = append(checks, "Retention: disabled (soft-deleted messages are kept forever)")
	}
	logger.LogConfigSummary("production?", checks)
}
