package cli

import (
	"fmt"
	"time"

	"livequiz/internal/capability"
	"livequiz/internal/config"

	"github.com/spf13/cobra"
)

// NewTokenCmd mints a moderator capability token for a room.
func NewTokenCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "token <roomId>",
		Short: "Print a moderator token for a course room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			issuer, err := newIssuer(cfg)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}

func newIssuer(cfg config.Config) (*capability.Issuer, error) {
	return capability.NewIssuer(cfg.Moderator.Secret, cfg.Moderator.Issuer, config.TTLDuration(cfg.Moderator.TokenTTL, 12*time.Hour))
}
