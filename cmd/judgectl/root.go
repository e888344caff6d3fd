// AngelaMos | 2026
// root.go

package main

import (
	"github.com/spf13/cobra"

	"github.com/carterperez-dev/judge/session-backend/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "judgectl",
		Short: "Operate the judge session service",
		Long: `judgectl manages signing keys, database migrations and accounts
for the judge session service.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(
		&opts.configPath,
		"config",
		"config.yaml",
		"path to config file",
	)

	root.AddCommand(
		newKeygenCmd(),
		newMigrateCmd(opts),
		newUserCmd(opts),
	)

	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}
