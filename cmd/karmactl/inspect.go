package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/baraza/backend/internal/counters"
	"github.com/emilythestrangee/baraza/backend/internal/karma"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

func inspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect USER_ID",
		Short: "Show a user's stored karma next to the counters and ledger rows behind it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			ctx := cmd.Context()
			db := a.db.WithContext(ctx)
			out := cmd.OutOrStdout()

			var profile models.Profile
			if err := db.Where("id = ?", id).First(&profile).Error; err != nil {
				return fmt.Errorf("load profile %s: %w", id, err)
			}
			var posts []models.Post
			if err := db.Where("author_id = ?", id).Order("created_at").Find(&posts).Error; err != nil {
				return err
			}
			var comments []models.Comment
			if err := db.Where("author_id = ?", id).Order("created_at").Find(&comments).Error; err != nil {
				return err
			}

			stored := profile.KarmaTriple()
			fmt.Fprintf(out, "user %s (%s)\n", profile.Username, profile.ID)
			fmt.Fprintf(out, "stored karma: post=%d comment=%d total=%d\n", stored.PostKarma, stored.CommentKarma, stored.Total)

			proj := a.projection()
			var netPosts, netComments int64
			fmt.Fprintf(out, "posts (%d):\n", len(posts))
			for _, p := range posts {
				netPosts += int64(p.Counters().Net())
				if err := printTarget(cmd, out, proj, models.PostTarget(p.ID), p.Counters()); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "comments (%d):\n", len(comments))
			for _, c := range comments {
				netComments += int64(c.Counters().Net())
				if err := printTarget(cmd, out, proj, models.CommentTarget(c.ID), c.Counters()); err != nil {
					return err
				}
			}

			implied := models.Karma{
				PostKarma:    int(karma.FloorDiv(netPosts, karma.Divisor)),
				CommentKarma: int(karma.FloorDiv(netComments, karma.Divisor)),
			}
			implied.Total = implied.PostKarma + implied.CommentKarma
			fmt.Fprintf(out, "implied karma: post=%d comment=%d total=%d\n", implied.PostKarma, implied.CommentKarma, implied.Total)
			if implied != stored {
				fmt.Fprintln(out, "MISMATCH: run `karmactl recompute --user "+id.String()+"`")
			}
			return nil
		},
	}
}

func printTarget(cmd *cobra.Command, out io.Writer, proj *counters.Projection, target models.Target, stored models.Counters) error {
	ledger, err := proj.Tally(cmd.Context(), target)
	if err != nil {
		return err
	}
	mark := ""
	if ledger != stored {
		mark = "  DRIFT"
	}
	fmt.Fprintf(out, "  %s counters=%d/%d ledger=%d/%d net=%d%s\n", target,
		stored.Upvotes, stored.Downvotes, ledger.Upvotes, ledger.Downvotes, stored.Net(), mark)
	return nil
}
