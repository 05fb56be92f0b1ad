package workflow

import (
	"context"
	"sync"

	"leaveflow/apperr"
	"leaveflow/models"
)

// memStore is a compare-and-set Store used by the engine tests.
type memStore struct {
	mu        sync.Mutex
	nextID    uint
	requests  map[uint]*models.Request
	records   map[uint][]*models.ApprovalRecord
	afterLoad func()
}

func newMemStore() *memStore {
	return &memStore{
		requests: make(map[uint]*models.Request),
		records:  make(map[uint][]*models.ApprovalRecord),
	}
}

func (s *memStore) Create(_ context.Context, req *models.Request, records []*models.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	req.ID = s.nextID
	stored := make([]*models.ApprovalRecord, 0, len(records))
	for i, r := range records {
		r.ID = uint(i + 1)
		r.RequestID = req.ID
		stored = append(stored, r.Clone())
	}
	s.requests[req.ID] = req.Clone()
	s.records[req.ID] = stored
	return nil
}

func (s *memStore) Load(_ context.Context, id uint) (*models.Request, []*models.ApprovalRecord, error) {
	s.mu.Lock()
	req, ok := s.requests[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil, apperr.NotFound("request", id)
	}
	req = req.Clone()
	records := make([]*models.ApprovalRecord, 0, len(s.records[id]))
	for _, r := range s.records[id] {
		records = append(records, r.Clone())
	}
	hook := s.afterLoad
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return req, records, nil
}

func (s *memStore) Commit(_ context.Context, t *Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[t.Request.ID]
	if !ok {
		return apperr.NotFound("request", t.Request.ID)
	}
	if stored.Version != t.ExpectedVersion || stored.Status != models.StatusPending {
		return ErrStale
	}
	if t.Record != nil {
		records := s.records[t.Request.ID]
		index := -1
		for i, r := range records {
			if r.Level == t.Record.Level {
				index = i
			}
		}
		if index < 0 || records[index].Status != models.RecordPending {
			return ErrStale
		}
		records[index] = t.Record.Clone()
	}
	s.requests[t.Request.ID] = t.Request.Clone()
	return nil
}
