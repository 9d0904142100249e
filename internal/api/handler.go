package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"mazda-bridge-backend/internal/coordinator"
	"mazda-bridge-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	coord   *coordinator.Coordinator
	store   store.Store
	webpush *webpush.Options
	log     zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(coord *coordinator.Coordinator, s store.Store, webpushOptions *webpush.Options, logger zerolog.Logger) *Handler {
	return &Handler{
		coord:   coord,
		store:   s,
		webpush: webpushOptions,
		log:     logger,
	}
}
