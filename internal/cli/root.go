// Package cli implements chatctl, a terminal client for the community chat.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Anonymous community chat from the terminal",
		Long: `chatctl reads and writes the shared community chat feed served by a
communitychat store. Your identity is kept in the local state dir; there is
no account.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.BoolP("verbose", "v", false, "enable verbose output")
	pf.StringP("profile", "p", "", "profile path (default is $HOME/.communitychat/chatctl.yaml)")
	pf.String("server", "", "store service URL")
	pf.String("api-key", "", "store service API key")
	pf.String("state-dir", "", "directory holding the local identity")
	pf.String("locale", "", "day label language: en or id")

	root.AddCommand(
		newWhoamiCmd(),
		newNameCmd(),
		newSendCmd(),
		newUnsendCmd(),
		newListCmd(),
		newWatchCmd(),
		newConfigCmd(),
	)
	return root
}

// Execute runs chatctl and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
