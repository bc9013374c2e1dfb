package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/baraza/backend/internal/middleware"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

func tokenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint a bearer token for a user (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			var profile models.Profile
			if err := a.db.WithContext(cmd.Context()).Where("id = ?", id).First(&profile).Error; err != nil {
				return fmt.Errorf("load profile %s: %w", id, err)
			}
			token, err := middleware.IssueToken([]byte(a.cfg.JWTSecret), &profile, a.cfg.TokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
