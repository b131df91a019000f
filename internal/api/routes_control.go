package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/events"
)

// handleKickSession force-disconnects a session.
func (s *Server) handleKickSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	var body struct {
		Reason string `json:"reason"`
	}
	c.ShouldBindJSON(&body) // reason is optional

	if !s.svc.KickSession(c.Request.Context(), sessionID, body.Reason) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "session_id": sessionID})
		return
	}

	// Tear down the TCP socket too, if the session came in over one.
	s.conns.Unregister(sessionID)

	log.Info().Str("session", sessionID).Str("reason", body.Reason).Msg("API: session kicked")

	c.JSON(http.StatusOK, gin.H{
		"status":     "kicked",
		"session_id": sessionID,
	})
}

// handleCloseRoom force-closes a room, notifying its members.
func (s *Server) handleCloseRoom(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	c.ShouldBindJSON(&body)

	if !s.svc.CloseRoom(c.Request.Context(), int32(roomID), body.Reason) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found", "room_id": roomID})
		return
	}

	log.Info().Int64("room", roomID).Str("reason", body.Reason).Msg("API: room closed")

	c.JSON(http.StatusOK, gin.H{
		"status":  "closed",
		"room_id": roomID,
	})
}

// handleGetBans returns the full ban list.
func (s *Server) handleGetBans(c *gin.Context) {
	bans, err := s.mdb.ListBans()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bans":  bans,
		"total": len(bans),
	})
}

// handleAddBan records a ban. A duration of zero means permanent.
func (s *Server) handleAddBan(c *gin.Context) {
	var body struct {
		Provider      string `json:"provider" binding:"required"`
		PlayerID      string `json:"player_id" binding:"required"`
		Reason        string `json:"reason"`
		DurationHours int    `json:"duration_hours"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expiresAt *time.Time
	if body.DurationHours > 0 {
		t := time.Now().Add(time.Duration(body.DurationHours) * time.Hour)
		expiresAt = &t
	}

	if err := s.mdb.AddBan(body.Provider, body.PlayerID, body.Reason, "api", expiresAt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventBanAdded,
		Source: "api",
		Payload: events.ModerationPayload{
			Target: body.Provider + ":" + body.PlayerID,
			Reason: body.Reason,
			Actor:  "api",
		},
	})

	c.JSON(http.StatusCreated, gin.H{
		"status":    "banned",
		"provider":  body.Provider,
		"player_id": body.PlayerID,
	})
}

// handleRemoveBan lifts a ban.
func (s *Server) handleRemoveBan(c *gin.Context) {
	provider := c.Param("provider")
	playerID := c.Param("player_id")

	removed, err := s.mdb.RemoveBan(provider, playerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "ban not found"})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventBanRemoved,
		Source: "api",
		Payload: events.ModerationPayload{
			Target: provider + ":" + playerID,
			Actor:  "api",
		},
	})

	c.JSON(http.StatusOK, gin.H{
		"status":    "unbanned",
		"provider":  provider,
		"player_id": playerID,
	})
}
