package search

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"resume-search/internal/metrics"
	"resume-search/internal/storage"
)

// HistoryStore persists search history records. *storage.DB satisfies it.
type HistoryStore interface {
	AppendSearchHistory(ctx context.Context, record storage.SearchHistory) error
}

// HistoryRecorder appends search audit records asynchronously through a
// buffered queue, so logging can never block or fail a query. Drops and
// write failures are reported via a metric, not to the caller.
type HistoryRecorder struct {
	store  HistoryStore
	queue  chan storage.SearchHistory
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewHistoryRecorder starts the background writer. store may be nil when
// running without persistence; records are then dropped silently after the
// metric is bumped.
func NewHistoryRecorder(store HistoryStore, buffer int, logger zerolog.Logger) *HistoryRecorder {
	r := &HistoryRecorder{
		store:  store,
		queue:  make(chan storage.SearchHistory, buffer),
		logger: logger,
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues one audit record. Non-blocking: a full queue drops the
// record and bumps the failure metric.
func (r *HistoryRecorder) Record(userID string, searchType storage.SearchType, query string) {
	record := storage.SearchHistory{
		ID:         uuid.New().String(),
		UserID:     userID,
		SearchType: searchType,
		Query:      query,
		SearchedAt: time.Now(),
	}
	select {
	case r.queue <- record:
	default:
		metrics.SearchHistoryFailuresTotal.Inc()
		r.logger.Warn().Str("search_type", string(searchType)).Msg("search history queue full, record dropped")
	}
}

// Close drains the queue and stops the writer.
func (r *HistoryRecorder) Close() {
	close(r.queue)
	r.wg.Wait()
}

func (r *HistoryRecorder) worker() {
	defer r.wg.Done()
	for record := range r.queue {
		if r.store == nil {
			metrics.SearchHistoryFailuresTotal.Inc()
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.AppendSearchHistory(ctx, record)
		cancel()
		if err != nil {
			metrics.SearchHistoryFailuresTotal.Inc()
			r.logger.Error().Err(err).Str("id", record.ID).Msg("search history append failed")
		}
	}
}
