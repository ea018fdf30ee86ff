// Package notifyhub pushes quota events to participants in real time. Events
// are published to Redis Pub/Sub by the funnel and fanned out here to
// whichever connected client belongs to the target user; users without a live
// connection fall back to a Telegram DM when one is configured.
package notifyhub

import (
	"log"

	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/storage"
)

// Fallback delivers a quota event to a user with no live connection.
// Delivery failures are logged, never propagated.
type Fallback interface {
	Deliver(ev models.QuotaEvent)
}

// Hub routes quota events to connected clients.
type Hub struct {
	Clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client

	Storage  *storage.Service
	Fallback Fallback

	eventCh chan models.QuotaEvent
}

// NewHub creates the event hub over the given storage service.
func NewHub(s *storage.Service) *Hub {
	return &Hub{
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Storage:      s,
		eventCh:      make(chan models.QuotaEvent, 64),
	}
}

// Run is the hub's main loop. It owns the Clients map; registration,
// unregistration, and event dispatch are serialized through it.
func (h *Hub) Run() {
	h.startPubSubListener()
	log.Println("Notify hub started.")

	for {
		select {
		case client := <-h.RegisterCh:
			if old, ok := h.Clients[client.GetUserID()]; ok {
				old.Close()
			}
			h.Clients[client.GetUserID()] = client
			client.Run()

		case client := <-h.UnregisterCh:
			if current, ok := h.Clients[client.GetUserID()]; ok && current == client {
				delete(h.Clients, client.GetUserID())
				client.Close()
			}

		case ev := <-h.eventCh:
			h.dispatch(ev)
		}
	}
}

// Publish feeds an event into the hub's dispatch loop directly, bypassing
// Redis. Single-instance deployments can use it in place of Pub/Sub.
func (h *Hub) Publish(ev models.QuotaEvent) {
	h.eventCh <- ev
}

// dispatch pushes an event to the target user's client, or the fallback.
// A slow client is dropped rather than allowed to block the hub.
func (h *Hub) dispatch(ev models.QuotaEvent) {
	client, ok := h.Clients[ev.UserID]
	if !ok {
		if h.Fallback != nil {
			// Fallback delivery is a network call; it must not stall the
			// dispatch loop.
			go h.Fallback.Deliver(ev)
		}
		return
	}

	select {
	case client.GetSendChannel() <- ev:
	default:
		log.Printf("WARNING: dropping slow client for user %s", ev.UserID)
		delete(h.Clients, ev.UserID)
		client.Close()
	}
}
