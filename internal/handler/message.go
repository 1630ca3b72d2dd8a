package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/logger"
)

const maxMessageBytes = 1 << 20

// MessageHandler answers one channel message. The returned value is written
// back to the sender as JSON.
type MessageHandler func(ctx context.Context, msg *domain.Message) (any, error)

// Registry maps channel message types to their handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]MessageHandler)}
}

// Register adds the handler for eventType. Each type has at most one handler.
func (r *Registry) Register(eventType string, h MessageHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[eventType]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateHandler, eventType)
	}
	r.handlers[eventType] = h
	return nil
}

// Lookup returns the handler for eventType.
func (r *Registry) Lookup(eventType string) (MessageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[eventType]
	return h, ok
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Message handles POST /__/auth/iframe.
func Message(reg *Registry, log *zap.Logger) http.HandlerFunc {
	log = logger.OrNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		var msg domain.Message
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
		if err := dec.Decode(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "malformed message")
			return
		}
		if msg.EventType == "" {
			writeError(w, http.StatusBadRequest, "missing eventType")
			return
		}

		h, ok := reg.Lookup(msg.EventType)
		if !ok {
			writeError(w, http.StatusNotFound, "no handler for message type")
			return
		}

		reply, err := h(r.Context(), &msg)
		if err != nil {
			log.Error("message handler failed", zap.String("message_type", msg.EventType), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "message handler failed")
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}
