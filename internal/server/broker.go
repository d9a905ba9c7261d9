package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Broker fans engine state updates out to SSE clients. No client may block
// the publisher: full client buffers are skipped and a full broadcast buffer
// drops the update.
type Broker struct {
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	mu         sync.RWMutex
	latest     []byte
}

func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 256),
	}
}

// Run drives the broker loop.
func (b *Broker) Run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			n := len(b.clients)
			b.mu.Unlock()
			log.Debug().Int("clients", n).Msg("sse client connected")

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
			}
			n := len(b.clients)
			b.mu.Unlock()
			log.Debug().Int("clients", n).Msg("sse client disconnected")

		case msg := <-b.broadcast:
			b.mu.Lock()
			b.latest = msg
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// slow client, skip this update
				}
			}
			b.mu.Unlock()
		}
	}
}

// Publish queues a state payload for broadcast.
func (b *Broker) Publish(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("state marshal failed")
		return
	}
	select {
	case b.broadcast <- data:
	default:
	}
}

// ServeHTTP streams state updates as server-sent events. The latest known
// state is delivered immediately upon connection.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan []byte, 10)

	b.mu.RLock()
	latest := b.latest
	b.mu.RUnlock()
	if latest != nil {
		fmt.Fprintf(w, "data: %s\n\n", latest)
		flusher.Flush()
	}

	b.register <- clientChan
	notify := r.Context().Done()

	for {
		select {
		case <-notify:
			b.unregister <- clientChan
			return
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
