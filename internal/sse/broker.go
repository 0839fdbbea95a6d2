// Package sse implements a Server-Sent Events broker for analysis progress.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/strikezone/internal/enrich"
	"github.com/starford/strikezone/internal/pipeline"
)

// Event types published for analysis runs.
const (
	EventStarted   = "analysis.started"
	EventBatch     = "enrichment.batch"
	EventCompleted = "analysis.completed"
	EventFailed    = "analysis.failed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type runEventReq struct {
	kind  string
	runID string
	data  any
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + per-run batch throttle timestamps). Public methods communicate with
// this loop through channels, so no mutexes are required.
type Broker struct {
	batchMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	runEventCh    chan runEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

var _ pipeline.Observer = (*Broker)(nil)

// NewBroker creates a new SSE broker. Successful enrichment.batch events of
// one run are sent at most once per batchThrottle.
func NewBroker(batchThrottle time.Duration) *Broker {
	if batchThrottle <= 0 {
		batchThrottle = 500 * time.Millisecond
	}

	b := &Broker{
		batchMin:      batchThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		runEventCh:    make(chan runEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	lastBatch := make(map[string]time.Time)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
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

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.runEventCh:
			switch req.kind {
			case EventBatch:
				// Failed batches always go out.
				if d, ok := req.data.(batchData); ok && d.Error == "" {
					now := time.Now()
					if now.Sub(lastBatch[req.runID]) < b.batchMin {
						continue
					}
					lastBatch[req.runID] = now
				}
			case EventCompleted, EventFailed:
				delete(lastBatch, req.runID)
			}
			broadcast(Event{Type: req.kind, Data: req.data})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

func (b *Broker) publishRun(kind, runID string, data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.runEventCh <- runEventReq{kind: kind, runID: runID, data: data}:
	case <-b.stopped:
	}
}

type startedData struct {
	RunID   string `json:"run_id"`
	Ranking string `json:"ranking"`
	Crawl   string `json:"crawl"`
}

type batchData struct {
	RunID    string `json:"run_id"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Size     int    `json:"size"`
	Fetched  int    `json:"fetched"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type completedData struct {
	RunID      string   `json:"run_id"`
	Pages      int      `json:"pages"`
	Keywords   int      `json:"keywords"`
	Volume     int      `json:"volume"`
	Enrichment string   `json:"enrichment,omitempty"`
	Unenriched []string `json:"unenriched,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

type failedData struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// RunStarted publishes analysis.started.
func (b *Broker) RunStarted(runID, ranking, crawl string) {
	b.publishRun(EventStarted, runID, startedData{RunID: runID, Ranking: ranking, Crawl: crawl})
}

// BatchDone publishes a throttled enrichment.batch.
func (b *Broker) BatchDone(runID string, ev enrich.BatchEvent) {
	d := batchData{
		RunID:    runID,
		Index:    ev.Index,
		Total:    ev.Total,
		Size:     ev.Size,
		Fetched:  ev.Fetched,
		Attempts: ev.Attempts,
	}
	if ev.Err != nil {
		d.Error = ev.Err.Error()
	}
	b.publishRun(EventBatch, runID, d)
}

// RunFinished publishes analysis.completed. Keywords of failed enrichment
// batches are listed so clients can retry them.
func (b *Broker) RunFinished(runID string, res *pipeline.Result) {
	s := res.Summary()
	d := completedData{
		RunID:      runID,
		Pages:      s.Pages,
		Keywords:   s.Keywords,
		Volume:     s.Volume,
		Enrichment: s.EnrichmentState,
		DurationMS: s.DurationMS,
	}
	if res.Enrichment != nil {
		d.Unenriched = res.Enrichment.FailedKeywords()
	}
	b.publishRun(EventCompleted, runID, d)
}

// RunFailed publishes analysis.failed.
func (b *Broker) RunFailed(runID string, err error) {
	b.publishRun(EventFailed, runID, failedData{RunID: runID, Error: err.Error()})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
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
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
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
