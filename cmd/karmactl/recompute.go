package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func recomputeCommand(a *app) *cobra.Command {
	var userFlag string
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute karma for one user or for everyone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agg := a.aggregator()
			out := cmd.OutOrStdout()
			if userFlag != "" {
				id, err := uuid.Parse(userFlag)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
				k, err := agg.Compute(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s post_karma=%d comment_karma=%d karma=%d\n", id, k.PostKarma, k.CommentKarma, k.Total)
				return nil
			}

			report, err := agg.RecomputeAll(cmd.Context())
			fmt.Fprintf(out, "users=%d succeeded=%d failed=%d took=%s\n",
				report.Users, report.Succeeded, len(report.Failed), report.Duration)
			for id, msg := range report.Failed {
				fmt.Fprintf(out, "  %s: %s\n", id, msg)
			}
			if err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d users failed", len(report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "only recompute this user id")
	return cmd
}
