package http

import (
	"net/http"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
)

// NewRouter wires the ordering routes. tracking may be nil when no order
// store is configured.
func NewRouter(conversations *ConversationHandler, tracking *TrackingHandler, log logger.Logger, limits RateLimitConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", handleHealth)
	if conversations != nil {
		mux.HandleFunc("/conversations/", conversations.HandleConversations)
		mux.HandleFunc("/businesses/", conversations.HandleBusinesses)
		mux.HandleFunc("/reservations/", conversations.HandleReservations)
	}
	if tracking != nil {
		mux.HandleFunc("/orders", tracking.HandleOrders)
		mux.HandleFunc("/orders/", tracking.HandleOrders)
	}

	return ApplyMiddlewares(mux,
		RequestIDMiddleware(),
		LoggingMiddleware(log),
		RateLimitMiddleware(limits, log),
	)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
