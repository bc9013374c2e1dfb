package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/baraza/backend/internal/models"
)

func toggleCommand(a *app) *cobra.Command {
	var (
		tf        targetFlags
		voterFlag string
		dirFlag   string
	)
	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Cast one vote and print the counters before and after",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			voterID, err := uuid.Parse(voterFlag)
			if err != nil {
				return fmt.Errorf("invalid --voter: %w", err)
			}
			dir, err := models.ParseDirection(dirFlag)
			if err != nil {
				return err
			}
			target, err := tf.target()
			if err != nil {
				return err
			}

			before, err := a.projection().Get(cmd.Context(), target)
			if err != nil {
				return err
			}
			out, err := a.ledger().CastVote(cmd.Context(), voterID, target, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: state=%s up %d -> %d, down %d -> %d\n",
				target, out.Action, out.State,
				before.Upvotes, out.Counters.Upvotes,
				before.Downvotes, out.Counters.Downvotes)
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().StringVar(&voterFlag, "voter", "", "voter profile id")
	cmd.Flags().StringVar(&dirFlag, "direction", string(models.Up), "up or down")
	_ = cmd.MarkFlagRequired("voter")
	return cmd
}
