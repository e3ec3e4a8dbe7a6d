// Package receiver is the HTTP listener for device push events. Each POST is
// acknowledged immediately and handed to a bounded queue; a fixed worker pool
// drains the queue through extract -> classify -> persist, so the device's
// retry behavior never couples to processing latency.
package receiver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hikbridge/internal/classifier"
	"hikbridge/internal/extractor"
	"hikbridge/internal/models"
)

// LogStore persists system log entries for granted/denied access events.
type LogStore interface {
	InsertLogEntry(ctx context.Context, entry string) error
}

// EventPublisher forwards classified events to whatever presentation layer
// consumes them. May be nil when publishing is disabled.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.ParsedEvent) error
}

// Stats 接收端运行统计快照
type Stats struct {
	Devices        int   `json:"devices"`
	TotalProcessed int64 `json:"total_processed"`
	Active         int64 `json:"active"`
	Stored         int64 `json:"stored"`
	Filtered       int64 `json:"filtered"`
	Unknown        int64 `json:"unknown"`
	NoJSON         int64 `json:"no_json"`
	Dropped        int64 `json:"dropped"`
}

// Receiver 设备事件 HTTP 接收器
type Receiver struct {
	httpServer *http.Server
	classifier *classifier.Classifier
	logStore   LogStore
	publisher  EventPublisher
	logger     *zap.Logger

	queue       chan models.IncomingEvent
	workers     int
	maxBodySize int64
	wg          sync.WaitGroup

	// stopMu orders handler enqueues against close(queue): Shutdown can
	// return on an expired context while handlers are still in flight.
	stopMu  sync.RWMutex
	stopped bool

	totalProcessed atomic.Int64
	active         atomic.Int64
	stored         atomic.Int64
	filtered       atomic.Int64
	unknown        atomic.Int64
	noJSON         atomic.Int64
	dropped        atomic.Int64

	devicesMu sync.Mutex
	devices   map[string]struct{}
}

// NewReceiver 创建事件接收器
func NewReceiver(
	addr string,
	queueSize int,
	workers int,
	maxBodySize int64,
	cls *classifier.Classifier,
	logStore LogStore,
	publisher EventPublisher,
	logger *zap.Logger,
) *Receiver {
	r := &Receiver{
		classifier:  cls,
		logStore:    logStore,
		publisher:   publisher,
		logger:      logger,
		queue:       make(chan models.IncomingEvent, queueSize),
		workers:     workers,
		maxBodySize: maxBodySize,
		devices:     make(map[string]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", r.handleStats)
	mux.HandleFunc("/", r.handleEvent)

	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return r
}

// Start 启动 worker 池与 HTTP 监听；ListenAndServe 阻塞直到 Stop
func (r *Receiver) Start() error {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.processLoop()
	}

	r.logger.Info("Starting event receiver",
		zap.String("addr", r.httpServer.Addr),
		zap.Int("workers", r.workers),
		zap.Int("queue_size", cap(r.queue)),
	)
	return r.httpServer.ListenAndServe()
}

// enqueue offers the event to the worker queue without blocking. Returns
// false when the queue is full or the receiver has begun shutting down.
func (r *Receiver) enqueue(ev models.IncomingEvent) bool {
	r.stopMu.RLock()
	defer r.stopMu.RUnlock()
	if r.stopped {
		return false
	}
	select {
	case r.queue <- ev:
		return true
	default:
		return false
	}
}

// Stop 停止 HTTP 监听并等待队列中已入队事件处理完毕
func (r *Receiver) Stop(ctx context.Context) error {
	r.logger.Info("Stopping event receiver")
	err := r.httpServer.Shutdown(ctx)

	r.stopMu.Lock()
	r.stopped = true
	close(r.queue)
	r.stopMu.Unlock()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// handleEvent acknowledges every POST with 200 before any processing happens.
// The device treats anything else as a delivery failure and retries.
func (r *Receiver) handleEvent(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	sourceAddr := remoteIP(req)
	body, err := io.ReadAll(io.LimitReader(req.Body, r.maxBodySize))
	if err != nil {
		r.logger.Warn("Failed to read event body",
			zap.String("source", sourceAddr),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
		return
	}

	if len(body) > 0 {
		ev := models.IncomingEvent{
			ID:          uuid.NewString(),
			Body:        body,
			ContentType: req.Header.Get("Content-Type"),
			SourceAddr:  sourceAddr,
			ReceivedAt:  time.Now(),
		}
		if !r.enqueue(ev) {
			r.dropped.Add(1)
			r.logger.Warn("Event queue full or shutting down, dropping event",
				zap.String("source", sourceAddr),
				zap.Int("body_size", len(body)),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (r *Receiver) handleStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, r.Snapshot())
}

// Snapshot returns the current counters; safe to call from any goroutine.
func (r *Receiver) Snapshot() Stats {
	r.devicesMu.Lock()
	devices := len(r.devices)
	r.devicesMu.Unlock()

	return Stats{
		Devices:        devices,
		TotalProcessed: r.totalProcessed.Load(),
		Active:         r.active.Load(),
		Stored:         r.stored.Load(),
		Filtered:       r.filtered.Load(),
		Unknown:        r.unknown.Load(),
		NoJSON:         r.noJSON.Load(),
		Dropped:        r.dropped.Load(),
	}
}

func (r *Receiver) processLoop() {
	defer r.wg.Done()
	for ev := range r.queue {
		r.processEvent(ev)
	}
}

// processEvent runs extract -> classify -> persist for one queued event.
// No input can take the loop down; every failure is logged per item.
func (r *Receiver) processEvent(ev models.IncomingEvent) {
	r.active.Add(1)
	defer func() {
		r.active.Add(-1)
		r.totalProcessed.Add(1)
	}()

	r.devicesMu.Lock()
	r.devices[ev.SourceAddr] = struct{}{}
	r.devicesMu.Unlock()

	raw, ok := extractor.Extract(ev.Body, ev.ContentType)
	if !ok {
		r.noJSON.Add(1)
		r.logger.Info("Event carried no detectable JSON",
			zap.String("event_id", ev.ID),
			zap.String("source", ev.SourceAddr),
			zap.Int("body_size", len(ev.Body)),
		)
		return
	}

	parsed := r.classifier.Classify(raw, ev.SourceAddr, ev.ReceivedAt)

	switch parsed.Kind {
	case models.EventHeartbeat:
		r.logger.Debug("HeartBeat", zap.String("device_ip", parsed.DeviceIP))

	case models.EventAccessGranted, models.EventAccessDenied:
		r.logger.Info("Access event",
			zap.String("event_id", ev.ID),
			zap.String("kind", parsed.Kind.String()),
			zap.String("device_ip", parsed.DeviceIP),
			zap.String("employee_no", parsed.Access.EmployeeNo),
			zap.String("log_entry", parsed.LogEntry),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.logStore.InsertLogEntry(ctx, parsed.LogEntry); err != nil {
			r.logger.Error("Failed to persist log entry",
				zap.String("event_id", ev.ID),
				zap.String("log_entry", parsed.LogEntry),
				zap.Error(err),
			)
		} else {
			r.stored.Add(1)
		}

	case models.EventFiltered:
		r.filtered.Add(1)
		r.logger.Debug("Filtered event",
			zap.String("device_ip", parsed.DeviceIP),
			zap.Int("major", parsed.Access.MajorType),
			zap.Int("minor", parsed.Access.MinorType),
		)

	default:
		r.unknown.Add(1)
		r.logger.Info("Unknown event shape",
			zap.String("event_id", ev.ID),
			zap.String("source", ev.SourceAddr),
		)
	}

	r.publish(parsed)
}

// publish is best-effort: a publisher failure never affects ingestion.
func (r *Receiver) publish(ev models.ParsedEvent) {
	if r.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.publisher.PublishEvent(ctx, ev); err != nil {
		r.logger.Warn("Failed to publish event", zap.Error(err))
	}
}

func remoteIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
