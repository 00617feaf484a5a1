// Package collector buffers analytics events in memory and publishes them
// to Kafka in batches, off the request path.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector accumulates events and flushes them when the buffer
// reaches batchSize or every flushInterval, whichever comes first. Track
// never blocks; events beyond maxBuffer are dropped.
type BatchCollector struct {
	publisher     Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	maxBuffer     int
	flushInterval time.Duration
	kick          chan struct{}
	dropped       int64
	logger        *slog.Logger
}

func NewBatchCollector(publisher Publisher, batchSize int, flushInterval time.Duration, maxBuffer int) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if maxBuffer < batchSize {
		maxBuffer = batchSize * 3
	}
	return &BatchCollector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		maxBuffer:     maxBuffer,
		flushInterval: flushInterval,
		kick:          make(chan struct{}, 1),
		logger:        slog.Default().With("component", "batch-collector"),
	}
}

// Run flushes until ctx is cancelled, then makes one last attempt with a
// short deadline.
func (bc *BatchCollector) Run(ctx context.Context) {
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
	ticker := time.NewTicker(bc.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bc.flush(ctx)
		case <-bc.kick:
			bc.flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			bc.flush(flushCtx)
			cancel()
			return
		}
	}
}

func (bc *BatchCollector) Track(event analytics.Event) {
	bc.mu.Lock()
	if len(bc.buffer) >= bc.maxBuffer {
		bc.dropped++
		bc.mu.Unlock()
		return
	}
	bc.buffer = append(bc.buffer, kafka.Event{
		Key:   string(event.Type),
		Type:  string(event.Type),
		Value: event,
	})
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		select {
		case bc.kick <- struct{}{}:
		default:
		}
	}
}

// BufferLen returns the current number of buffered events.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	if bc.dropped > 0 {
		bc.logger.Warn("analytics events dropped (buffer full)", "dropped", bc.dropped)
		bc.dropped = 0
	}
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		// Re-queue ahead of newer events, keeping at most maxBuffer.
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		if len(bc.buffer) > bc.maxBuffer {
			bc.dropped += int64(len(bc.buffer) - bc.maxBuffer)
			bc.buffer = bc.buffer[:bc.maxBuffer]
		}
		bc.mu.Unlock()
		return
	}
	bc.logger.Debug("batch flushed", "events", len(batch))
}
