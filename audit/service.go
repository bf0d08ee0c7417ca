// Package audit records quest mutations to the database off the
// request path.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/philsgames/questtracker/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueDepth    = 512
	batchMax      = 64
	flushInterval = 3 * time.Second
)

// Entry holds one audit event to be logged.
type Entry struct {
	TraceID    string
	AccountID  *int64
	Username   string
	Action     string
	QuestID    string
	Request    interface{}
	Error      string
	IP         string
	DurationMs int
}

func (e Entry) record() *model.AuditLog {
	reqJSON, _ := json.Marshal(e.Request)
	return &model.AuditLog{
		TraceID:    e.TraceID,
		AccountID:  e.AccountID,
		Username:   e.Username,
		Action:     e.Action,
		QuestID:    e.QuestID,
		Request:    datatypes.JSON(reqJSON),
		Error:      e.Error,
		IP:         e.IP,
		DurationMs: e.DurationMs,
	}
}

// Service buffers entries and writes them in batches from a single
// worker goroutine. Log never blocks a request handler: when the
// queue is full the entry is dropped and counted in the log.
type Service struct {
	db       *gorm.DB
	queue    chan *model.AuditLog
	closing  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:      db,
		queue:   make(chan *model.AuditLog, queueDepth),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go svc.worker()
	return svc
}

// Log enqueues an entry. Safe to call after Stop (the entry is dropped).
func (svc *Service) Log(entry Entry) {
	select {
	case svc.queue <- entry.record():
	default:
		svc.logger.Warn("audit queue full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes queued entries and waits for the worker to exit.
// Idempotent.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.closing) })
	<-svc.done
}

func (svc *Service) worker() {
	defer close(svc.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchMax)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit write failed",
				zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-svc.queue:
			batch = append(batch, rec)
			if len(batch) >= batchMax {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.closing:
			for {
				select {
				case rec := <-svc.queue:
					batch = append(batch, rec)
					if len(batch) >= batchMax {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
