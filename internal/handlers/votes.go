package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/baraza/backend/internal/models"
	"github.com/emilythestrangee/baraza/backend/internal/votes"
)

type voteRequest struct {
	VoteType models.Direction `json:"vote_type" binding:"required,oneof=up down"`
}

type voteResponse struct {
	State     models.VoteState `json:"state"`
	Upvotes   int              `json:"upvotes"`
	Downvotes int              `json:"downvotes"`
	Action    votes.Action     `json:"action"`
}

// bindVote reads the direction from the request body.
func bindVote(c *gin.Context) (models.Direction, bool) {
	var input voteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vote_type must be up or down"})
		return "", false
	}
	return input.VoteType, true
}

// castVote records the authenticated user's vote and writes the outcome.
// Failed votes answer with an error and no counters.
func castVote(c *gin.Context, ledger *votes.Ledger, logger *zap.Logger, target models.Target, dir models.Direction) {
	voterID, ok := currentUser(c)
	if !ok {
		return
	}
	out, err := ledger.CastVote(c.Request.Context(), voterID, target, dir)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, voteResponse{
		State:     out.State,
		Upvotes:   out.Counters.Upvotes,
		Downvotes: out.Counters.Downvotes,
		Action:    out.Action,
	})
}

func getVote(c *gin.Context, ledger *votes.Ledger, logger *zap.Logger, target models.Target) {
	voterID, ok := currentUser(c)
	if !ok {
		return
	}
	state, err := ledger.GetVote(c.Request.Context(), voterID, target)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}
