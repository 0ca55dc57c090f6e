package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// Session errors.
var (
	ErrSessionNotReady      = errors.New("execution session is not ready")
	ErrAlreadyStarted       = errors.New("exam already started")
	ErrNotRunning           = errors.New("exam is not running")
	ErrAlreadySubmitted     = errors.New("exam already submitted")
	ErrUnknownTask          = errors.New("unknown task")
	ErrEmptyCode            = errors.New("code is empty")
	ErrExecutionInFlight    = errors.New("another execution is in progress")
	ErrFullscreenRequired   = errors.New("fullscreen is required")
	ErrConfirmationRequired = errors.New("submission was not confirmed")
	ErrSessionClosed        = errors.New("session is closed")
)

// User-facing messages.
const (
	MsgExecutionUnreachable = "Failed to connect to the execution server."
	MsgValidationFailed     = "Submission failed."
	MsgConfirmSubmit        = "Are you sure you want to finish the exam?"
	MsgLevelUnlocked        = "Congratulations! You passed the level and the next level is unlocked."
	MsgSubmitted            = "Exam submitted successfully."
	MsgSubmitErrorPrefix    = "An error occurred during submission: "
	MsgFullscreenRequired   = "Fullscreen is required to start the exam. Please enable it in your browser and try again."
)

// ExecutionGateway runs and grades code and records final submissions.
type ExecutionGateway interface {
	StartSession(ctx context.Context, sessionID uuid.UUID) error
	Run(ctx context.Context, req model.RunRequest) (*model.RunResponse, error)
	Validate(ctx context.Context, req model.ValidateRequest) (*model.ValidateResponse, error)
	Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResponse, error)
}

// ContentSource serves the security configuration and task list.
type ContentSource interface {
	FetchSecurityConfig(ctx context.Context) (model.SecurityConfig, error)
	FetchTasks(ctx context.Context, subject, level string) ([]model.Task, error)
}

// FullscreenRequester asks the examinee's page to enter fullscreen and waits
// for the answer.
type FullscreenRequester interface {
	RequestFullscreen(ctx context.Context) error
}

// SessionObserver receives state changes of a session. Calls are made
// without any controller lock held.
type SessionObserver interface {
	OnSnapshot(snapshot model.SessionSnapshot)
	OnTaskUpdated(view model.TaskView)
	OnArmed(kinds []proctor.SignalKind)
	OnDisarmed(kinds []proctor.SignalKind)
	OnWarning(message string, violations model.ViolationState)
	OnNotice(message string)
	OnTick(timeLeft int)
	OnConfirmSubmit(prompt string)
	OnSubmitted(outcome model.SubmissionOutcome)
	OnIdentity(profile model.ExamineeProfile)
}

// Presenter is the examinee-facing side of a session.
type Presenter interface {
	SessionObserver
	FullscreenRequester
}

// IdentitySink stores the examinee profile returned by a submission.
type IdentitySink interface {
	UpdateProfile(ctx context.Context, profile model.ExamineeProfile) error
}

// AuditSink records proctoring events. It must not block for long.
type AuditSink interface {
	Record(ctx context.Context, event model.ProctorEvent)
}

// SnapshotSink keeps the latest snapshot of a session.
type SnapshotSink interface {
	Save(ctx context.Context, snapshot model.SessionSnapshot) error
}

// ExamSessionController owns one examinee's exam session: the countdown, the
// per-task code state and the submission latch. It mediates between the
// violation monitor, the policy and the gateway.
type ExamSessionController struct {
	mu sync.Mutex

	// publishMu keeps snapshots reaching the page and the store in the
	// order they were built. Taken before mu, never while holding it.
	publishMu sync.Mutex
	version   uint64

	session           model.ExamSession
	security          model.SecurityConfig
	tasks             []model.Task
	states            map[string]*model.CodeState
	warning           string
	confirmPending    bool
	executing         bool
	submissionMessage string
	closed            bool

	policy    *proctor.Policy
	monitor   *proctor.Monitor
	countdown *Countdown

	gateway   ExecutionGateway
	content   ContentSource
	presenter Presenter
	identity  IdentitySink
	audit     AuditSink
	snapshots SnapshotSink
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	cfg       config.ProctorConfig
	log       zerolog.Logger
}

func newExamSessionController(s *ProctorService, examinee, subject, level string, presenter Presenter) *ExamSessionController {
	c := &ExamSessionController{
		session: model.ExamSession{
			Subject:  subject,
			Level:    level,
			Examinee: examinee,
			TimeLeft: int(s.cfg.ExamDuration.Seconds()),
			Phase:    model.PhaseNotStarted,
		},
		security:  model.FailSecureConfig(),
		states:    make(map[string]*model.CodeState),
		gateway:   s.gateway,
		content:   s.content,
		presenter: presenter,
		identity:  s.identity,
		audit:     s.audit,
		snapshots: s.snapshots,
		metrics:   s.metrics,
		clock:     s.clock,
		cfg:       s.cfg,
		log: s.log.With().
			Str("examinee", examinee).
			Str("subject", subject).
			Str("level", level).
			Logger(),
	}

	c.policy = proctor.NewPolicy(s.cfg.MaxViolations, proctor.NewCooldown(s.clock, s.cfg.ViolationCooldown))
	c.monitor = proctor.NewMonitor(proctor.MonitorOptions{
		Clock:             s.clock,
		BlurGrace:         s.cfg.BlurGrace,
		DevtoolsThreshold: s.cfg.DevtoolsThreshold,
		PollInterval:      s.cfg.DevtoolsPoll,
		Busy:              c.policy.Busy,
	}, c.onViolation, c.log)
	c.countdown = NewCountdown(s.clock, c.session.TimeLeft, c.onTick, c.onTimeout)
	return c
}

// LoadSecurityConfig fetches the security configuration. Any failure falls
// back to the fail-secure configuration; it never blocks the session.
func (c *ExamSessionController) LoadSecurityConfig(ctx context.Context) model.SecurityConfig {
	cfg, err := c.content.FetchSecurityConfig(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Security config unavailable, using fail-secure defaults")
		cfg = model.FailSecureConfig()
	}

	c.mu.Lock()
	if c.session.Started {
		// The config is fixed once the exam runs.
		cfg = c.security
	} else {
		c.security = cfg
	}
	c.mu.Unlock()

	c.publish(ctx)
	return cfg
}

// LoadTasks fetches the task list once and seeds each task's code with its
// starter code.
func (c *ExamSessionController) LoadTasks(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.tasks != nil
	c.mu.Unlock()
	if loaded {
		return nil
	}

	tasks, err := c.content.FetchTasks(ctx, c.session.Subject, c.session.Level)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	c.mu.Lock()
	if c.tasks == nil {
		c.tasks = append([]model.Task{}, tasks...)
		for _, t := range c.tasks {
			c.states[t.ID] = &model.CodeState{Code: t.StarterCode}
		}
	}
	c.mu.Unlock()

	c.publish(ctx)
	return nil
}

// StartSession allocates a fresh session id and opens an execution session
// on the gateway. The session is ready only if the gateway accepted it.
func (c *ExamSessionController) StartSession(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.session.FinalSubmitted {
		c.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if c.session.Started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	id := uuid.New()
	c.session.SessionID = id
	c.session.Ready = false
	c.mu.Unlock()

	if err := c.gateway.StartSession(ctx, id); err != nil {
		c.log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to start execution session")
		return fmt.Errorf("start session: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.session.SessionID == id {
		c.session.Ready = true
	}
	c.mu.Unlock()

	c.log.Info().Str("session_id", id.String()).Msg("Execution session ready")
	c.publish(ctx)
	return nil
}

// StartExam enters fullscreen when required, then activates the policy,
// arms the monitor and starts the countdown.
func (c *ExamSessionController) StartExam(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkStartableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	needFullscreen := c.security.Fullscreen
	c.mu.Unlock()

	if needFullscreen && !c.monitor.Fullscreen() {
		if err := c.requestFullscreen(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Fullscreen refused, exam not started")
			return fmt.Errorf("%w: %v", ErrFullscreenRequired, err)
		}
	}

	c.mu.Lock()
	if err := c.checkStartableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	now := c.clock.Now()
	c.session.Started = true
	c.session.Phase = model.PhaseRunning
	c.session.StartedAt = &now
	sessionID := c.session.SessionID
	c.policy.Activate()
	kinds := c.monitor.Arm(c.security)
	c.countdown.Start()
	c.mu.Unlock()

	c.metrics.SessionStarted(c.session.Subject)
	c.record(ctx, model.EventKindStarted, "", 0)
	c.log.Info().Str("session_id", sessionID.String()).Msg("Exam started")

	if len(kinds) > 0 {
		c.presenter.OnArmed(kinds)
	}
	c.publish(ctx)
	return nil
}

// checkStartableLocked is evaluated again after the fullscreen round trip,
// which runs unlocked and may race with Close.
func (c *ExamSessionController) checkStartableLocked() error {
	switch {
	case c.closed:
		return ErrSessionClosed
	case c.session.FinalSubmitted:
		return ErrAlreadySubmitted
	case c.session.Started:
		return ErrAlreadyStarted
	case !c.session.Ready:
		return ErrSessionNotReady
	}
	return nil
}

func (c *ExamSessionController) requestFullscreen(ctx context.Context) error {
	if c.cfg.FullscreenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.FullscreenTimeout)
		defer cancel()
	}
	if err := c.presenter.RequestFullscreen(ctx); err != nil {
		return err
	}
	c.monitor.SetFullscreen(true)
	return nil
}

// EditCode replaces a task's code and clears its result and verdict.
func (c *ExamSessionController) EditCode(taskID, code string) error {
	c.mu.Lock()
	if c.session.FinalSubmitted {
		c.mu.Unlock()
		return ErrAlreadySubmitted
	}
	st, ok := c.states[taskID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	st.Code = code
	st.LastResult = nil
	st.Validated = nil
	view := c.viewLocked(taskID)
	c.mu.Unlock()

	c.presenter.OnTaskUpdated(view)
	return nil
}

// SetCustomInput stores the stdin used by runs of a task and whether it is
// sent at all.
func (c *ExamSessionController) SetCustomInput(taskID, input string, enabled bool) error {
	c.mu.Lock()
	st, ok := c.states[taskID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	st.CustomInput = input
	st.CustomInputEnabled = enabled
	view := c.viewLocked(taskID)
	c.mu.Unlock()

	c.presenter.OnTaskUpdated(view)
	return nil
}

// beginExecutionLocked checks that taskID can be executed and marks the
// session busy.
func (c *ExamSessionController) beginExecutionLocked(taskID string) (model.Task, *model.CodeState, error) {
	if c.closed {
		return model.Task{}, nil, ErrSessionClosed
	}
	if !c.session.Ready {
		return model.Task{}, nil, ErrSessionNotReady
	}
	if c.session.FinalSubmitted {
		return model.Task{}, nil, ErrAlreadySubmitted
	}
	task, ok := c.findTaskLocked(taskID)
	if !ok {
		return model.Task{}, nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	st := c.states[taskID]
	if strings.TrimSpace(st.Code) == "" {
		return model.Task{}, nil, ErrEmptyCode
	}
	if c.executing {
		return model.Task{}, nil, ErrExecutionInFlight
	}
	c.executing = true
	st.LastResult = nil
	return task, st, nil
}

// RunCell executes a task's code with its custom input, if enabled. A
// transport failure is stored on the task as an error result.
func (c *ExamSessionController) RunCell(ctx context.Context, taskID string) error {
	c.mu.Lock()
	task, st, err := c.beginExecutionLocked(taskID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	req := model.RunRequest{
		SessionID:  c.session.SessionID.String(),
		Code:       st.Code,
		Username:   c.session.Examinee,
		Subject:    c.session.Subject,
		Level:      c.session.Level,
		QuestionID: task.TaskID,
		PartID:     task.PartID,
	}
	if st.CustomInputEnabled {
		req.Input = st.CustomInput
	}
	c.mu.Unlock()
	c.publish(ctx)

	resp, err := c.gateway.Run(ctx, req)

	c.mu.Lock()
	c.executing = false
	if err != nil {
		c.log.Warn().Err(err).Str("task_id", taskID).Msg("Run failed")
		c.states[taskID].LastResult = &model.RunResult{Stderr: strPtr(MsgExecutionUnreachable)}
	} else {
		result := &model.RunResult{Stdout: resp.Stdout, Stderr: resp.Stderr}
		c.states[taskID].LastResult = result
		if !result.HasError() && c.states[taskID].Validated == nil {
			c.states[taskID].Validated = boolPtr(false)
		}
	}
	view := c.viewLocked(taskID)
	c.mu.Unlock()

	c.presenter.OnTaskUpdated(view)
	c.publish(ctx)
	return nil
}

// ValidateCell grades a task's code against its hidden tests. The task
// passes only if there is at least one test and every test passed.
func (c *ExamSessionController) ValidateCell(ctx context.Context, taskID string) error {
	c.mu.Lock()
	task, st, err := c.beginExecutionLocked(taskID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	req := model.ValidateRequest{
		SessionID:  c.session.SessionID.String(),
		Username:   c.session.Examinee,
		Subject:    c.session.Subject,
		Level:      c.session.Level,
		QuestionID: task.TaskID,
		PartID:     task.PartID,
		Code:       st.Code,
	}
	c.mu.Unlock()
	c.publish(ctx)

	resp, err := c.gateway.Validate(ctx, req)

	c.mu.Lock()
	c.executing = false
	if err != nil {
		c.log.Warn().Err(err).Str("task_id", taskID).Msg("Validation failed")
		c.states[taskID].LastResult = &model.RunResult{Stderr: strPtr(MsgValidationFailed)}
		c.states[taskID].Validated = boolPtr(false)
	} else {
		c.states[taskID].LastResult = &model.RunResult{TestResults: resp.TestResults}
		c.states[taskID].Validated = boolPtr(allTrue(resp.TestResults))
	}
	view := c.viewLocked(taskID)
	c.mu.Unlock()

	c.presenter.OnTaskUpdated(view)
	c.publish(ctx)
	return nil
}

// AttemptSubmit asks the examinee to confirm finishing the exam.
func (c *ExamSessionController) AttemptSubmit() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.session.Phase != model.PhaseRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.confirmPending = true
	c.mu.Unlock()

	c.presenter.OnConfirmSubmit(MsgConfirmSubmit)
	c.publish(context.Background())
	return nil
}

// CancelSubmit dismisses the confirmation prompt.
func (c *ExamSessionController) CancelSubmit() {
	c.mu.Lock()
	c.confirmPending = false
	c.mu.Unlock()
	c.publish(context.Background())
}

// ConfirmSubmit submits the exam after AttemptSubmit.
func (c *ExamSessionController) ConfirmSubmit(ctx context.Context) (*model.SubmissionOutcome, error) {
	c.mu.Lock()
	if !c.confirmPending {
		c.mu.Unlock()
		return nil, ErrConfirmationRequired
	}
	c.confirmPending = false
	c.mu.Unlock()

	return c.SubmitExam(ctx, model.SubmitManual)
}

// SubmitExam performs the final submission. Only the first trigger wins;
// later calls return ErrAlreadySubmitted. The countdown, monitor and policy
// are torn down before the gateway is called, and the session always ends
// Completed whatever the gateway answers.
func (c *ExamSessionController) SubmitExam(ctx context.Context, reason model.SubmitReason) (*model.SubmissionOutcome, error) {
	c.mu.Lock()
	if c.session.FinalSubmitted {
		c.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	if !c.session.Started {
		c.mu.Unlock()
		return nil, ErrNotRunning
	}
	c.session.FinalSubmitted = true
	c.session.Phase = model.PhaseSubmitting
	c.session.SubmitReason = reason
	c.confirmPending = false

	c.countdown.Stop()
	disarmed := c.monitor.Disarm()
	c.policy.Halt()

	req := c.buildSubmitRequestLocked()
	c.mu.Unlock()

	c.metrics.SessionFinished()
	c.record(ctx, model.EventKindSubmitted, string(reason), c.policy.State().Count)
	c.log.Info().Str("reason", string(reason)).Bool("all_passed", req.AllPassed).Msg("Submitting exam")
	if len(disarmed) > 0 {
		c.presenter.OnDisarmed(disarmed)
	}
	c.publish(ctx)

	// The submission must outlive the examinee's connection.
	resp, err := c.gateway.Submit(context.WithoutCancel(ctx), req)

	outcome := model.SubmissionOutcome{Reason: reason, AllPassed: req.AllPassed}
	switch {
	case err != nil:
		c.log.Error().Err(err).Msg("Submission failed")
		outcome.Message = MsgSubmitErrorPrefix + err.Error()
	case resp.UpdatedUser != nil:
		outcome.Delivered = true
		outcome.UpdatedUser = resp.UpdatedUser
		outcome.Message = MsgLevelUnlocked
	default:
		outcome.Delivered = true
		outcome.Message = MsgSubmitted
	}

	if outcome.UpdatedUser != nil {
		c.propagateIdentity(ctx, *outcome.UpdatedUser)
	}

	c.mu.Lock()
	now := c.clock.Now()
	c.session.Phase = model.PhaseCompleted
	c.session.FinishedAt = &now
	c.submissionMessage = outcome.Message
	c.mu.Unlock()

	c.metrics.RecordSubmission(string(reason), outcome.Delivered)
	c.presenter.OnSubmitted(outcome)
	c.publish(ctx)
	return &outcome, nil
}

func (c *ExamSessionController) buildSubmitRequestLocked() model.SubmitRequest {
	answers := make([]model.Answer, 0, len(c.tasks))
	allPassed := len(c.tasks) > 0
	for _, t := range c.tasks {
		st := c.states[t.ID]
		passed := st.Passed()
		if !passed {
			allPassed = false
		}
		answers = append(answers, model.Answer{
			QuestionID: t.TaskID,
			PartID:     t.PartID,
			Code:       st.Code,
			Passed:     passed,
		})
	}
	return model.SubmitRequest{
		SessionID: c.session.SessionID.String(),
		Username:  c.session.Examinee,
		Subject:   c.session.Subject,
		Level:     c.session.Level,
		Answers:   answers,
		AllPassed: allPassed,
	}
}

func (c *ExamSessionController) propagateIdentity(ctx context.Context, profile model.ExamineeProfile) {
	if c.identity != nil {
		if err := c.identity.UpdateProfile(context.WithoutCancel(ctx), profile); err != nil {
			c.log.Error().Err(err).Msg("Failed to store updated profile")
		}
	}
	c.presenter.OnIdentity(profile)
}

// AcknowledgeWarning dismisses the current warning and restores fullscreen.
func (c *ExamSessionController) AcknowledgeWarning(ctx context.Context) error {
	c.mu.Lock()
	c.warning = ""
	c.mu.Unlock()
	c.publish(ctx)

	return c.ReEnterFullscreen(ctx)
}

// ReEnterFullscreen requests fullscreen again if the config requires it and
// the page is not fullscreen. Failure forces submission.
func (c *ExamSessionController) ReEnterFullscreen(ctx context.Context) error {
	c.mu.Lock()
	running := c.session.Phase == model.PhaseRunning
	need := c.security.Fullscreen
	c.mu.Unlock()

	if !running || !need || c.monitor.Fullscreen() {
		return nil
	}

	if err := c.requestFullscreen(ctx); err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return ErrSessionClosed
		}
		c.log.Warn().Err(err).Msg("Could not restore fullscreen, forcing submission")
		if _, subErr := c.SubmitExam(ctx, model.SubmitFullscreen); subErr != nil && !errors.Is(subErr, ErrAlreadySubmitted) {
			c.log.Error().Err(subErr).Msg("Forced submission failed")
		}
		return fmt.Errorf("%w: %v", ErrFullscreenRequired, err)
	}
	return nil
}

// HandleSignal routes a browser signal to the monitor.
func (c *ExamSessionController) HandleSignal(sig proctor.Signal) proctor.Outcome {
	out := c.monitor.HandleSignal(sig)
	if out.Notice != "" {
		c.presenter.OnNotice(out.Notice)
	}
	return out
}

func (c *ExamSessionController) onViolation(reason model.ViolationReason) {
	d := c.policy.Evaluate(reason)
	if d.Kind == proctor.DecisionIgnored {
		return
	}

	ctx := context.Background()
	c.metrics.RecordViolation(string(reason), d.Kind == proctor.DecisionWarn)
	c.record(ctx, model.EventKindViolation, string(reason), d.Count)
	c.log.Warn().Str("reason", string(reason)).Int("count", d.Count).Str("decision", d.Kind.String()).Msg("Violation")

	if d.Kind == proctor.DecisionTerminate {
		if _, err := c.SubmitExam(ctx, model.SubmitViolations); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			c.log.Error().Err(err).Msg("Forced submission failed")
		}
		return
	}

	c.mu.Lock()
	if c.session.FinalSubmitted {
		c.mu.Unlock()
		return
	}
	c.warning = d.Message
	c.mu.Unlock()

	c.presenter.OnWarning(d.Message, c.policy.State())
	c.publish(ctx)
}

func (c *ExamSessionController) onTick(remaining int) {
	c.mu.Lock()
	if c.session.FinalSubmitted {
		c.mu.Unlock()
		return
	}
	c.session.TimeLeft = remaining
	c.mu.Unlock()

	c.presenter.OnTick(remaining)
}

func (c *ExamSessionController) onTimeout() {
	if _, err := c.SubmitExam(context.Background(), model.SubmitTimeout); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
		c.log.Error().Err(err).Msg("Timeout submission failed")
	}
}

// Close tears the session down when the examinee leaves. It does not submit.
func (c *ExamSessionController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	wasRunning := c.session.Phase == model.PhaseRunning
	c.countdown.Stop()
	c.monitor.Disarm()
	c.policy.Halt()
	c.mu.Unlock()

	if wasRunning {
		c.metrics.SessionFinished()
		c.log.Info().Msg("Examinee left a running exam")
	}
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.saveSnapshot(context.Background(), c.Snapshot())
}

// Snapshot returns a copy of the session state. Every call carries a higher
// Version than the one before.
func (c *ExamSessionController) Snapshot() model.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version++

	views := make([]model.TaskView, 0, len(c.tasks))
	for _, t := range c.tasks {
		views = append(views, c.viewLocked(t.ID))
	}
	return model.SessionSnapshot{
		Version:           c.version,
		Session:           c.session,
		Security:          c.security,
		Violations:        c.policy.State(),
		Warning:           c.warning,
		ConfirmPending:    c.confirmPending,
		Executing:         c.executing,
		SubmissionMessage: c.submissionMessage,
		Tasks:             views,
	}
}

// Session returns a copy of the session identity and lifecycle state.
func (c *ExamSessionController) Session() model.ExamSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *ExamSessionController) findTaskLocked(taskID string) (model.Task, bool) {
	for _, t := range c.tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return model.Task{}, false
}

func (c *ExamSessionController) viewLocked(taskID string) model.TaskView {
	task, _ := c.findTaskLocked(taskID)
	st := *c.states[taskID]
	return model.TaskView{Task: task, State: st, Status: st.Status()}
}

func (c *ExamSessionController) publish(ctx context.Context) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	snap := c.Snapshot()
	c.presenter.OnSnapshot(snap)
	c.saveSnapshot(ctx, snap)
}

func (c *ExamSessionController) saveSnapshot(ctx context.Context, snap model.SessionSnapshot) {
	if c.snapshots == nil || snap.Session.SessionID == uuid.Nil {
		return
	}
	if err := c.snapshots.Save(context.WithoutCancel(ctx), snap); err != nil {
		c.log.Warn().Err(err).Msg("Failed to save session snapshot")
	}
}

func (c *ExamSessionController) record(ctx context.Context, kind model.ProctorEventKind, reason string, count int) {
	if c.audit == nil {
		return
	}
	c.mu.Lock()
	event := model.ProctorEvent{
		ID:         uuid.New(),
		SessionID:  c.session.SessionID,
		Examinee:   c.session.Examinee,
		Subject:    c.session.Subject,
		Level:      c.session.Level,
		Kind:       kind,
		Reason:     reason,
		Count:      count,
		RecordedAt: c.clock.Now(),
	}
	c.mu.Unlock()
	c.audit.Record(context.WithoutCancel(ctx), event)
}

func allTrue(results []bool) bool {
	if len(results) == 0 {
		return false
	}
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
