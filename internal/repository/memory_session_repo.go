package repository

import (
	"context"
	"sync"
	"time"

	"tgforward-web/internal/model"
)

// MemorySessionRepository keeps sessions for the life of the process. It is
// used when no database is configured.
type MemorySessionRepository struct {
	mu      sync.RWMutex
	records map[string]model.SessionRecord
	now     func() time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{records: map[string]model.SessionRecord{}, now: time.Now}
}

func (r *MemorySessionRepository) Load(_ context.Context, id string) (model.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || rec.Expired(r.now()) {
		return model.SessionRecord{}, model.ErrSessionNotFound
	}
	rec.Data = append([]byte(nil), rec.Data...)
	return rec, nil
}

func (r *MemorySessionRepository) Save(_ context.Context, rec model.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Data = append([]byte(nil), rec.Data...)
	rec.UpdatedAt = r.now().UTC()
	r.records[rec.ID] = rec
	return nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, id)
	return nil
}

func (r *MemorySessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var removed int64
	for id, rec := range r.records {
		if rec.Expired(now) {
			delete(r.records, id)
			removed++
		}
	}
	return removed, nil
}
