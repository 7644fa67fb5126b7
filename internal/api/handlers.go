package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marketintel/engine/internal/checkpoint"
)

// checkpointHandler serves GET /analyses/:thread_id/checkpoint — the
// latest GraphState checkpointed for a run, per spec §6's "History/
// Checkpoint inspectors" contract.
func (s *Server) checkpointHandler(c *gin.Context) {
	threadID := c.Param("thread_id")

	snapshot, err := s.checkpoints.Get(c.Request.Context(), threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no checkpoint found for this run"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read checkpoint"})
		return
	}

	state, err := snapshot.DecodeState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decode checkpoint"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"thread_id":      snapshot.ThreadID,
		"node_name":      snapshot.NodeName,
		"timestamp":      snapshot.Timestamp,
		"schema_version": snapshot.SchemaVersion,
		"state":          state,
	})
}

// historyHandler serves GET /analyses/:thread_id/history — every
// checkpoint written for a run, oldest first as the store returns them,
// so a caller can replay how GraphState evolved node by node.
func (s *Server) historyHandler(c *gin.Context) {
	threadID := c.Param("thread_id")

	snapshots, err := s.checkpoints.List(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if len(snapshots) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no checkpoints found for this run"})
		return
	}

	entries := make([]gin.H, 0, len(snapshots))
	for _, snap := range snapshots {
		state, err := snap.DecodeState()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decode checkpoint"})
			return
		}
		entries = append(entries, gin.H{
			"node_name": snap.NodeName,
			"timestamp": snap.Timestamp,
			"state":     state,
		})
	}

	c.JSON(http.StatusOK, gin.H{"thread_id": threadID, "checkpoints": entries})
}

// healthHandler is a trivial liveness probe.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
