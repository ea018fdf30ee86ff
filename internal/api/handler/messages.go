package handler

import (
	"errors"
	"net/http"

	"tokenchat/backend/internal/funnel"

	"github.com/gin-gonic/gin"
)

type matchCreatedRequest struct {
	ParticipantA string `json:"participant_a" binding:"required"`
	ParticipantB string `json:"participant_b" binding:"required"`
}

// CreateMatch is the match-created event intake: it initializes the chat
// session for a newly matched pair. Repeated delivery of the same event
// returns the existing session.
func (h *Handler) CreateMatch(c *gin.Context) {
	var req matchCreatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_a and participant_b are required"})
		return
	}
	if req.ParticipantA == req.ParticipantB {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a participant cannot match with themselves"})
		return
	}

	session, err := h.Funnel.InitSession(c.Request.Context(), req.ParticipantA, req.ParticipantB)
	if err != nil {
		if errors.Is(err, funnel.ErrProfileNotFound) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initialize session"})
		return
	}

	c.JSON(http.StatusCreated, session)
}

type sendMessageRequest struct {
	MessageKey string `json:"message_key" binding:"required"`
	WordCount  int    `json:"word_count" binding:"required,min=1"`
}

// SendMessage runs one message through the chat funnel. The response status
// mirrors the typed funnel outcome: 200 for an allowed send, 402 when a
// deposit is required, 409 when the sender must wait for the other party.
func (h *Handler) SendMessage(c *gin.Context) {
	senderID, ok := h.participantFromRequest(c)
	if !ok {
		return
	}
	chatID := c.Param("chat_id")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_key and word_count are required"})
		return
	}

	result, err := h.Funnel.ProcessMessage(c.Request.Context(), chatID, senderID, req.MessageKey, req.WordCount)
	if err != nil {
		switch {
		case errors.Is(err, funnel.ErrChatNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
		case errors.Is(err, funnel.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this chat"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
		}
		return
	}

	switch {
	case result.Allowed:
		c.JSON(http.StatusOK, result)
	case result.RequiresDeposit:
		c.JSON(http.StatusPaymentRequired, result)
	default:
		c.JSON(http.StatusConflict, result)
	}
}

// GetChat returns the session state to one of its participants.
func (h *Handler) GetChat(c *gin.Context) {
	participantID, ok := h.participantFromRequest(c)
	if !ok {
		return
	}

	session, err := h.Storage.GetSession(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chat"})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
		return
	}
	if !session.IsParticipant(participantID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this chat"})
		return
	}

	c.JSON(http.StatusOK, session)
}
