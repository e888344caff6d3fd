// AngelaMos | 2026
// user.go

package main

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
	"github.com/carterperez-dev/judge/session-backend/internal/user"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	cmd.AddCommand(newUserAddCmd(opts))

	return cmd
}

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var req user.CreateUserRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account that can sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := validator.New(validator.WithRequiredStructEnabled())
			if err := v.Struct(req); err != nil {
				return fmt.Errorf("invalid user: %s", core.FormatValidationError(err))
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}

			db, err := core.NewDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // process exits right after

			svc := user.NewService(user.NewRepository(db.DB))

			created, err := svc.Create(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", created.Username, created.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Username, "username", "", "login name")
	f.StringVar(&req.DisplayName, "display-name", "", "name shown on the scoreboard")
	f.StringVar(&req.Password, "password", "", "initial password")
	f.StringVar(&req.Role, "role", user.RoleUser, "user or admin")
	f.IntVar(&req.Rating, "rating", user.DefaultRating, "starting rating")
	_ = cmd.MarkFlagRequired("username") //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("password") //nolint:errcheck // flag is defined above

	return cmd
}
