package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
)

var (
	tokenRole    string
	tokenSession string
)

// tokenCmd mints a bearer token for local testing of the API and sockets.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Print a signed access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		switch models.UserType(tokenRole) {
		case models.UserTypePassenger, models.UserTypeDriver, models.UserTypeAdmin:
		default:
			return fmt.Errorf("unknown role %q", tokenRole)
		}
		if tokenSession == "" {
			tokenSession = uuid.NewString()
		}
		tok, err := utils.GenerateToken(cfg.Auth.JWTSecret, args[0], tokenSession, tokenRole, cfg.Auth.TokenTTL())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(models.UserTypePassenger), "passenger, driver or admin")
	tokenCmd.Flags().StringVar(&tokenSession, "session", "", "session id (random when empty)")
	rootCmd.AddCommand(tokenCmd)
}
