package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/baraza/backend/internal/counters"
)

func reconcileCommand(a *app) *cobra.Command {
	var tf targetFlags
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recount vote counters from the ledger (all targets when no flag is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proj := a.projection()
			out := cmd.OutOrStdout()
			if tf.set() {
				target, err := tf.target()
				if err != nil {
					return err
				}
				rec, err := proj.Reconcile(cmd.Context(), target)
				if err != nil {
					return err
				}
				printReconciliation(cmd, rec)
				return refreshKarma(cmd, a, []counters.Reconciliation{rec})
			}

			report, err := proj.ReconcileAll(cmd.Context(), a.cfg.Karma.Concurrency)
			fmt.Fprintf(out, "checked=%d repaired=%d failed=%d\n", report.Checked, len(report.Repaired), len(report.Failed))
			for _, rec := range report.Repaired {
				printReconciliation(cmd, rec)
			}
			for target, msg := range report.Failed {
				fmt.Fprintf(out, "  %s: %s\n", target, msg)
			}
			if err != nil {
				return err
			}
			return refreshKarma(cmd, a, report.Repaired)
		},
	}
	tf.register(cmd)
	return cmd
}

func printReconciliation(cmd *cobra.Command, rec counters.Reconciliation) {
	status := "ok"
	if rec.Drifted() {
		status = "repaired"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d/%d -> %d/%d\n", rec.Target, status,
		rec.Before.Upvotes, rec.Before.Downvotes, rec.After.Upvotes, rec.After.Downvotes)
}

// refreshKarma recomputes the karma of every author whose counters were
// repaired, once per author.
func refreshKarma(cmd *cobra.Command, a *app, recs []counters.Reconciliation) error {
	seen := make(map[uuid.UUID]bool)
	agg := a.aggregator()
	for _, rec := range recs {
		if !rec.Drifted() || seen[rec.AuthorID] {
			continue
		}
		seen[rec.AuthorID] = true
		k, err := agg.Compute(cmd.Context(), rec.AuthorID)
		if err != nil {
			return fmt.Errorf("recompute karma for %s: %w", rec.AuthorID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "karma %s post_karma=%d comment_karma=%d karma=%d\n",
			rec.AuthorID, k.PostKarma, k.CommentKarma, k.Total)
	}
	return nil
}
