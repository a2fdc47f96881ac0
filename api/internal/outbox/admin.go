package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"missionboard/api/internal/models"
)

// ErrDeadLetterNotFound is returned when a reprocess targets an id that is
// not currently dead-lettered.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// AdminService is the operator surface: inspect dead letters and push them
// back into the pending queue.
type AdminService struct {
	store Store
	now   func() time.Time
}

func NewAdminService(store Store) *AdminService {
	return &AdminService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *AdminService) ReprocessDeadLetter(ctx context.Context, envelopeID uuid.UUID) error {
	count, err := s.store.Requeue(ctx, envelopeID, s.now())
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrDeadLetterNotFound
	}
	return nil
}

// ReprocessDeadLetters bulk-requeues everything matching the filter.
// Zero matches is success with count 0.
func (s *AdminService) ReprocessDeadLetters(ctx context.Context, filter models.DeadLetterFilter) (int64, error) {
	return s.store.RequeueWhere(ctx, filter, s.now())
}

func (s *AdminService) GetDeadLetters(ctx context.Context, page int, pageSize int) (models.DeadLetterPage, error) {
	return s.store.ListDeadLetters(ctx, page, pageSize)
}
