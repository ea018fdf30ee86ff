package notifyhub

import (
	"encoding/json"
	"log"

	"tokenchat/backend/internal/models"
)

// startPubSubListener subscribes to the quota event channel in Redis and
// feeds received events into the hub's dispatch loop. With several server
// instances behind a balancer, every instance sees every event and only the
// one holding the target user's connection delivers it.
func (h *Hub) startPubSubListener() {
	if h.Storage == nil {
		return
	}
	go func() {
		pubsub := h.Storage.SubscribeQuotaEvents()
		defer pubsub.Close()

		for msg := range pubsub.Channel() {
			var ev models.QuotaEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("ERROR: failed to unmarshal quota event: %v", err)
				continue
			}
			h.eventCh <- ev
		}
	}()
}
