// Package sse implements a per-user Server-Sent Events broker for archive
// change notifications.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// GraphUpdated is the throttled event kind.
const GraphUpdated = "graph.updated"

// Event is one notification addressed to a single user.
type Event struct {
	UserID string `json:"-"`
	Type   string `json:"type"`
	Data   any    `json:"data"`
}

type subscription struct {
	userID string
	ch     chan []byte
}

type countReq struct {
	userID string // empty counts everyone
	resp   chan int
}

// Broker manages SSE client connections and routes events to the clients of
// the event's user.
//
// A single internal event loop owns the client set and the per-user graph
// throttle timestamps; public methods talk to it over channels.
type Broker struct {
	graphMin time.Duration
	now      func() time.Time

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan countReq

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker; graph.updated is sent at most once per
// graphThrottle per user.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		now:           time.Now,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan countReq),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	lastGraph := make(map[string]time.Time)

	deliver := func(event Event) {
		if event.Type == GraphUpdated {
			now := b.now()
			if now.Sub(lastGraph[event.UserID]) < b.graphMin {
				return
			}
			lastGraph[event.UserID] = now
		}
		data := event.Data
		if data == nil {
			data = map[string]string{}
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch, user := range clients {
			if user != event.UserID {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.userID

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			deliver(event)

		case req := <-b.countReqCh:
			n := 0
			for _, user := range clients {
				if req.userID == "" || user == req.userID {
					n++
				}
			}
			req.resp <- n
		}
	}
}

// Close stops the loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client for userID and returns its channel.
func (b *Broker) Subscribe(userID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{userID: userID, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients of userID, or of all
// users when userID is empty.
func (b *Broker) ClientCount(userID string) int {
	if b.closed.Load() {
		return 0
	}

	req := countReq{userID: userID, resp: make(chan int, 1)}
	select {
	case b.countReqCh <- req:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-req.resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues event for the clients of event.UserID.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Notify publishes an archive change; it satisfies archive.Notifier.
func (b *Broker) Notify(userID, kind string, data map[string]string) {
	b.Publish(Event{UserID: userID, Type: kind, Data: data})
}

// Stream serves the event stream of userID until the request ends or the
// broker closes.
func (b *Broker) Stream(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(userID)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
