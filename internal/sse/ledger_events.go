package sse

import (
	"context"
	"sync"

	"ms-ledger/internal/models"
)

// LedgerEmitter fans ledger events out to SSE clients subscribed per event.
type LedgerEmitter struct {
	clients map[string][]chan models.LedgerEvent
	mu      sync.RWMutex
	buffer  int
}

func NewLedgerEmitter() *LedgerEmitter {
	return &LedgerEmitter{
		clients: make(map[string][]chan models.LedgerEvent),
		buffer:  10,
	}
}

// Subscribe registers a client for eventID. The channel is closed once ctx
// is done.
func (e *LedgerEmitter) Subscribe(ctx context.Context, eventID string) <-chan models.LedgerEvent {
	ch := make(chan models.LedgerEvent, e.buffer)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, ch)
	}()
	return ch
}

// Emit delivers evt to every subscriber of its event. Slow clients whose
// buffer is full miss the event.
func (e *LedgerEmitter) Emit(evt models.LedgerEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[evt.EventID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (e *LedgerEmitter) remove(eventID string, ch chan models.LedgerEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, c := range clients {
		if c == ch {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

// ClientCount returns the number of clients currently subscribed to an event
func (e *LedgerEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}
