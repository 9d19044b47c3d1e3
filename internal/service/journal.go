package service

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lstlabs/vaultgate/internal/model"
)

// JournalService is the event sink behind the vault's Emitter. Emit never
// blocks: entries go into an in-memory ring for the read API and onto a
// buffered channel drained by a single writer goroutine that appends to a
// daily JSONL file and, when configured, a database repository.
type JournalService struct {
	eventChan chan *model.Event
	logFile   *os.File
	ring      *eventRing
	repo      JournalRepo
	recent    RecentSink

	closeOnce sync.Once
	done      chan struct{}
}

type JournalRepo interface {
	Insert(ctx context.Context, e *model.Event) error
	List(ctx context.Context, eventType string, limit int, from, to *time.Time) ([]*model.Event, error)
}

// RecentSink receives every event for a capped recent-events store (the
// Redis list); failures are logged and ignored.
type RecentSink interface {
	Push(ctx context.Context, e *model.Event) error
}

func NewJournalService(dir string, bufferSize, ringSize int, repo JournalRepo, recent RecentSink) (*JournalService, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	// Daily file rotation, picked up on restart.
	filename := filepath.Join(dir, "journal-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	svc := &JournalService{
		eventChan: make(chan *model.Event, bufferSize),
		logFile:   f,
		ring:      newEventRing(ringSize),
		repo:      repo,
		recent:    recent,
		done:      make(chan struct{}),
	}
	go svc.drain()
	return svc, nil
}

// Emit implements vault.Emitter.
func (s *JournalService) Emit(e *model.Event) {
	s.ring.Add(e)
	select {
	case s.eventChan <- e:
	default:
		// Buffer full: drop rather than stall the vault's critical section.
		log.Println("journal buffer full, dropping event", e.Type)
	}
}

// List serves the read API: database first when available, ring otherwise.
func (s *JournalService) List(ctx context.Context, eventType string, limit int, from, to *time.Time) ([]*model.Event, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, eventType, limit, from, to)
		if err == nil {
			return records, nil
		}
	}
	return s.ring.List(eventType, limit), nil
}

func (s *JournalService) drain() {
	defer close(s.done)
	encoder := json.NewEncoder(s.logFile)
	for e := range s.eventChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), e); err != nil {
				log.Printf("journal db insert failed: %v", err)
			}
		}
		if s.recent != nil {
			if err := s.recent.Push(context.Background(), e); err != nil {
				log.Printf("journal recent push failed: %v", err)
			}
		}
		if err := encoder.Encode(e); err != nil {
			log.Printf("journal file write failed: %v", err)
		}
	}
}

// Close stops the writer after flushing everything already queued.
func (s *JournalService) Close() {
	s.closeOnce.Do(func() {
		close(s.eventChan)
		<-s.done
		s.logFile.Close()
	})
}

type eventRing struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.Event
	nextIndex int
}

func newEventRing(maxSize int) *eventRing {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &eventRing{
		maxSize: maxSize,
		records: make([]*model.Event, 0, maxSize),
	}
}

func (r *eventRing) Add(e *model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) < r.maxSize {
		r.records = append(r.records, e)
		return
	}
	r.records[r.nextIndex] = e
	r.nextIndex = (r.nextIndex + 1) % r.maxSize
}

// List returns newest-first, optionally filtered by event type.
func (r *eventRing) List(eventType string, limit int) []*model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > r.maxSize {
		limit = r.maxSize
	}
	results := make([]*model.Event, 0, limit)
	total := len(r.records)
	for i := 0; i < total; i++ {
		idx := (r.nextIndex + total - 1 - i) % total
		e := r.records[idx]
		if e == nil {
			continue
		}
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		results = append(results, e)
		if len(results) >= limit {
			break
		}
	}
	return results
}
