package audit

import (
	"context"
	"sync"
	"time"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
	"github.com/creditgate/billing/pkg/observability"
	"github.com/creditgate/billing/pkg/timeutil"
)

// Config holds audit recorder configuration
type Config struct {
	// QueueSize bounds the in-flight records; a full queue drops new records
	QueueSize int
	// WriteTimeout bounds each insert; the request context is gone by the
	// time the worker runs, so writes get their own deadline
	WriteTimeout time.Duration
}

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 5 * time.Second
)

// Service records credit check decisions off the request path. Record
// enqueues and returns immediately; a worker goroutine drains the queue into
// the check repository. The trail is best effort: a full queue drops the
// record and bumps a counter rather than slowing down checks.
type Service struct {
	checks   ports.CheckRepository
	logger   ports.Logger
	queue    chan *domain.CheckRecord
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	config   Config
}

// NewService creates a new audit recorder. Call Start to launch the worker.
func NewService(checks ports.CheckRepository, logger ports.Logger, config Config) *Service {
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	return &Service{
		checks: checks,
		logger: logger,
		queue:  make(chan *domain.CheckRecord, config.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		config: config,
	}
}

// Start launches the worker goroutine
func (s *Service) Start() {
	go s.run()
}

// Record enqueues a check decision for recording. Never blocks: when the
// queue is full the record is dropped and counted.
func (s *Service) Record(record *domain.CheckRecord) {
	if record == nil {
		return
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = timeutil.Now()
	}

	select {
	case s.queue <- record:
		observability.SetCheckAuditQueueDepth(len(s.queue))
	default:
		observability.RecordCheckAuditDropped()
		s.logger.Warn("check audit queue full, dropping record",
			ports.String("account_id", record.AccountID.String()))
	}
}

// Shutdown stops the worker after draining whatever is queued. Returns the
// context error when draining outlives the deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.quit) })

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run() {
	defer close(s.done)

	for {
		select {
		case record := <-s.queue:
			s.write(record)
		case <-s.quit:
			// Drain what is already queued, then exit
			for {
				select {
				case record := <-s.queue:
					s.write(record)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(record *domain.CheckRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	if err := s.checks.Create(ctx, nil, record); err != nil {
		observability.RecordCheckAuditWrite("error")
		s.logger.Warn("check audit write failed",
			ports.String("account_id", record.AccountID.String()),
			ports.Err(err))
	} else {
		observability.RecordCheckAuditWrite("ok")
	}
	observability.SetCheckAuditQueueDepth(len(s.queue))
}
