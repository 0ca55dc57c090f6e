package service

import (
	"context"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

const monitorSessionLimit = 500

// SessionSummarizer aggregates the persisted audit trail of a subject level.
type SessionSummarizer interface {
	SummarizeLevel(ctx context.Context, subject, level string, limit int) ([]repository.SessionSummary, error)
}

// SnapshotReader reads cached session snapshots in bulk.
type SnapshotReader interface {
	GetMany(ctx context.Context, sessionIDs []string) (map[string]model.SessionSnapshot, error)
}

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	summaries SessionSummarizer
	snapshots SnapshotReader
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(summaries SessionSummarizer, snapshots SnapshotReader) *MonitorService {
	return &MonitorService{summaries: summaries, snapshots: snapshots}
}

// SessionProgress is one examinee session as seen by a proctor. Phase and
// TimeLeft come from the live snapshot when one is cached.
type SessionProgress struct {
	repository.SessionSummary
	Phase    model.SessionPhase `json:"phase,omitempty"`
	TimeLeft *int               `json:"time_left,omitempty"`
}

// LevelProgress holds the monitor view of a subject level.
type LevelProgress struct {
	Sessions        []SessionProgress `json:"sessions"`
	TotalSessions   int               `json:"total_sessions"`
	TotalInProgress int               `json:"total_in_progress"`
	TotalCompleted  int               `json:"total_completed"`
	TotalViolations int64             `json:"total_violations"`
}

// GetLevelProgress merges the persisted summaries with live snapshots.
// Snapshots are best-effort; the summaries are required.
func (s *MonitorService) GetLevelProgress(ctx context.Context, subject, level string) (*LevelProgress, error) {
	summaries, err := s.summaries.SummarizeLevel(ctx, subject, level, monitorSessionLimit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(summaries))
	for _, sum := range summaries {
		if !sum.Submitted {
			ids = append(ids, sum.SessionID.String())
		}
	}

	var (
		live map[string]model.SessionSnapshot
		wg   sync.WaitGroup
	)
	if s.snapshots != nil && len(ids) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			live, _ = s.snapshots.GetMany(ctx, ids)
		}()
	}

	progress := &LevelProgress{
		Sessions:      make([]SessionProgress, 0, len(summaries)),
		TotalSessions: len(summaries),
	}
	for _, sum := range summaries {
		progress.TotalViolations += sum.Violations
		if sum.Submitted {
			progress.TotalCompleted++
		} else {
			progress.TotalInProgress++
		}
	}

	wg.Wait()

	for _, sum := range summaries {
		p := SessionProgress{SessionSummary: sum}
		if sum.Submitted {
			p.Phase = model.PhaseCompleted
		} else if snap, ok := live[sum.SessionID.String()]; ok {
			p.Phase = snap.Session.Phase
			timeLeft := snap.Session.TimeLeft
			p.TimeLeft = &timeLeft
		}
		progress.Sessions = append(progress.Sessions, p)
	}
	return progress, nil
}
