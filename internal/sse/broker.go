// Package sse broadcasts index changes to browser clients as Server-Sent
// Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Document change kinds accepted by PublishDocumentEvent. They match the
// indexer's callback kinds.
const (
	KindIndexed = "indexed"
	KindRemoved = "removed"
)

// Event types sent to clients.
const (
	EventDocumentIndexed = "document.indexed"
	EventDocumentRemoved = "document.removed"
	EventIndexUpdated    = "index.updated"
)

var documentEvents = map[string]string{
	KindIndexed: EventDocumentIndexed,
	KindRemoved: EventDocumentRemoved,
}

const clientBuffer = 64

// Event is one message for connected clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

// Option configures a Broker.
type Option func(*Broker)

// WithThrottle sets the minimum gap between two index.updated events.
func WithThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.updateMin = d
		}
	}
}

// WithKeepAlive sets how often an idle stream receives a comment line.
// Zero disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// WithHistory sets how many past events are kept for clients that
// reconnect with Last-Event-ID.
func WithHistory(n int) Option {
	return func(b *Broker) {
		if n >= 0 && n <= clientBuffer {
			b.historyLen = n
		}
	}
}

// Broker fans events out to SSE clients.
//
// A single loop goroutine owns the clients, the replay history, the event
// counter and the index.updated throttle. Public methods talk to it over
// channels.
type Broker struct {
	updateMin  time.Duration
	keepAlive  time.Duration
	historyLen int

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	docEventCh    chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker loop. Call Close to stop it.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		updateMin:     2 * time.Second,
		keepAlive:     15 * time.Second,
		historyLen:    clientBuffer,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event),
		docEventCh:    make(chan Event),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		history    []frame
		nextID     uint64
		lastUpdate time.Time
		pending    int
		flush      <-chan time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		nextID++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", nextID, event.Type, payload))

		if b.historyLen > 0 {
			history = append(history, frame{id: nextID, raw: raw})
			if len(history) > b.historyLen {
				history = history[len(history)-b.historyLen:]
			}
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; it can catch up through Last-Event-ID.
			}
		}
	}

	announce := func(now time.Time) {
		lastUpdate = now
		broadcast(Event{Type: EventIndexUpdated, Data: map[string]int{"changes": pending}})
		pending = 0
		flush = nil
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.lastID == 0 {
				continue
			}
			for _, f := range history {
				if f.id > sub.lastID {
					sub.ch <- f.raw
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case event := <-b.docEventCh:
			broadcast(event)
			pending++
			now := time.Now()
			if wait := b.updateMin - now.Sub(lastUpdate); wait <= 0 {
				announce(now)
			} else if flush == nil {
				flush = time.After(wait)
			}

		case now := <-flush:
			announce(now)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. Events newer than lastEventID still held in
// the history are queued first; zero means no replay.
func (b *Broker) Subscribe(lastEventID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, lastID: lastEventID}:
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

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients. It returns once the
// loop has taken the event; delivery to slow clients is dropped.
func (b *Broker) Publish(event Event) {
	b.send(b.publishCh, event)
}

// PublishDocumentEvent broadcasts an indexer change. A burst of changes is
// followed by a single index.updated event, at most one per throttle
// interval, and the last burst is always announced. Unknown kinds are
// dropped.
func (b *Broker) PublishDocumentEvent(kind, path string) {
	typ, ok := documentEvents[kind]
	if !ok {
		return
	}
	b.send(b.docEventCh, Event{Type: typ, Data: map[string]string{"path": path}})
}

func (b *Broker) send(ch chan Event, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case ch <- event:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		ping = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
