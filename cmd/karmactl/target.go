package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/baraza/backend/internal/models"
)

// targetFlags are the mutually exclusive --post / --comment flags.
type targetFlags struct {
	post    string
	comment string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.post, "post", "", "post id")
	cmd.Flags().StringVar(&f.comment, "comment", "", "comment id")
	cmd.MarkFlagsMutuallyExclusive("post", "comment")
}

func (f *targetFlags) set() bool {
	return f.post != "" || f.comment != ""
}

func (f *targetFlags) target() (models.Target, error) {
	switch {
	case f.post != "":
		id, err := uuid.Parse(f.post)
		if err != nil {
			return models.Target{}, fmt.Errorf("invalid --post: %w", err)
		}
		return models.PostTarget(id), nil
	case f.comment != "":
		id, err := uuid.Parse(f.comment)
		if err != nil {
			return models.Target{}, fmt.Errorf("invalid --comment: %w", err)
		}
		return models.CommentTarget(id), nil
	}
	return models.Target{}, errors.New("one of --post or --comment is required")
}
