package handler

import (
	"tokenchat/backend/internal/funnel"
	"tokenchat/backend/internal/notifyhub"
	"tokenchat/backend/internal/storage"
)

// Handler holds the services the HTTP surface dispatches into.
type Handler struct {
	Funnel    *funnel.Service
	Storage   storage.Storage
	Hub       *notifyhub.Hub
	JWTSecret []byte
}

func NewHandler(f *funnel.Service, s storage.Storage, hub *notifyhub.Hub, jwtSecret []byte) *Handler {
	return &Handler{Funnel: f, Storage: s, Hub: hub, JWTSecret: jwtSecret}
}
