package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

// generateJWT issues a bearer token carrying the participant ID.
func (h *Handler) generateJWT(participantID string) (string, error) {
	claims := jwt.MapClaims{
		"participant_id": participantID,
		"exp":            time.Now().Add(time.Hour * 72).Unix(),
		"iss":            "tokenchat-service",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.JWTSecret)
}

// validateAndGetParticipantID parses a bearer token and returns the
// participant ID it carries.
func (h *Handler) validateAndGetParticipantID(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	participantID, ok := claims["participant_id"].(string)
	if !ok || participantID == "" {
		return "", errors.New("missing participant_id claim")
	}
	return participantID, nil
}

// participantFromRequest extracts and validates the bearer token from the
// Authorization header. It aborts the request with 401 on failure and
// returns ok=false.
func (h *Handler) participantFromRequest(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return "", false
	}

	participantID, err := h.validateAndGetParticipantID(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return "", false
	}
	return participantID, true
}

// GetParticipantToken mints a participant ID and returns it with a JWT.
func (h *Handler) GetParticipantToken(c *gin.Context) {
	participantUUID, _ := uuid.NewRandom()
	participantID := participantUUID.String()

	token, err := h.generateJWT(participantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "participant_id": participantID})
}
