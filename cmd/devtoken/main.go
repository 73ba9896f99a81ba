// Command devtoken prints a bearer token for local testing against a
// server started with the same JWT_SECRET.
//
//	go run ./cmd/devtoken --user 1
//	go run ./cmd/devtoken --user 9 --role ADMIN --ttl 2h
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/armyboard/connection-service/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		user uint64
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint a bearer token for local requests",
		Long: `Mint an HS256 access token signed with JWT_SECRET (read from the
environment or .env) that the connection service accepts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if user == 0 {
				return errors.New("--user is required")
			}
			tok, err := utils.NewAccessToken(secret, user, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&user, "user", 0, "user id to put in the sub claim")
	cmd.Flags().StringVar(&role, "role", "", "optional role claim, e.g. ADMIN")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
