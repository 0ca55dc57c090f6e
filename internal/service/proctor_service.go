package service

import (
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
)

// ProctorService holds the collaborators shared by every exam session and
// creates one ExamSessionController per examinee connection.
type ProctorService struct {
	gateway   ExecutionGateway
	content   ContentSource
	identity  IdentitySink
	audit     AuditSink
	snapshots SnapshotSink
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	cfg       config.ProctorConfig
	log       zerolog.Logger
}

// ProctorDeps groups the optional collaborators of a ProctorService.
type ProctorDeps struct {
	Identity  IdentitySink
	Audit     AuditSink
	Snapshots SnapshotSink
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
}

// NewProctorService creates a new ProctorService.
func NewProctorService(gateway ExecutionGateway, content ContentSource, cfg config.ProctorConfig, deps ProctorDeps, log zerolog.Logger) *ProctorService {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ProctorService{
		gateway:   gateway,
		content:   content,
		identity:  deps.Identity,
		audit:     deps.Audit,
		snapshots: deps.Snapshots,
		metrics:   deps.Metrics,
		clock:     clock,
		cfg:       cfg,
		log:       log.With().Str("component", "exam_session").Logger(),
	}
}

// NewSession creates the controller of one examinee's attempt at a level.
func (s *ProctorService) NewSession(examinee, subject, level string, presenter Presenter) *ExamSessionController {
	return newExamSessionController(s, examinee, subject, level, presenter)
}
