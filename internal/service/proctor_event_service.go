package service

import (
	"context"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

const (
	defaultEventsPerPage = 50
	maxEventsPerPage     = 500
)

// ProctorEventLister pages through the persisted audit trail.
type ProctorEventLister interface {
	List(ctx context.Context, filter repository.ProctorEventFilter, page, perPage int) ([]model.ProctorEvent, int64, error)
}

// ProctorEventService serves the audit trail to proctors.
type ProctorEventService struct {
	events ProctorEventLister
}

// NewProctorEventService creates a new ProctorEventService.
func NewProctorEventService(events ProctorEventLister) *ProctorEventService {
	return &ProctorEventService{events: events}
}

// List returns one page of events and the normalized page parameters.
func (s *ProctorEventService) List(ctx context.Context, filter repository.ProctorEventFilter, page, perPage int) ([]model.ProctorEvent, int64, int, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultEventsPerPage
	}
	if perPage > maxEventsPerPage {
		perPage = maxEventsPerPage
	}

	events, total, err := s.events.List(ctx, filter, page, perPage)
	if err != nil {
		return nil, 0, page, perPage, err
	}
	return events, total, page, perPage, nil
}
