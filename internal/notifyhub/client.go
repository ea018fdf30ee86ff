package notifyhub

import "tokenchat/backend/internal/models"

// Client is the interface for any delivery channel holding a user's live
// connection (WebSocket today; the hub treats channel types uniformly).
type Client interface {
	// GetUserID returns the user the connection belongs to.
	GetUserID() string

	// GetSendChannel returns the channel the hub pushes quota events into.
	// It is a send-only channel.
	GetSendChannel() chan<- models.QuotaEvent

	// Run starts the client's write pump.
	Run()
	// Close shuts down the client's connection and send channel.
	Close()
}
