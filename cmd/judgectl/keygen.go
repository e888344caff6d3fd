// AngelaMos | 2026
// keygen.go

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/judge/session-backend/internal/auth"
)

func newKeygenCmd() *cobra.Command {
	var privatePath, publicPath string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ES256 key pair for access tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := auth.GenerateKeyPair(privatePath, publicPath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote private key to %s\n", privatePath)
			if publicPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote public key to %s\n", publicPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&privatePath, "private", "keys/private.pem", "private key output path")
	cmd.Flags().StringVar(&publicPath, "public", "keys/public.pem", "public key output path, empty to skip")

	return cmd
}
