package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeGateway struct {
	mu          sync.Mutex
	startErr    error
	runResp     *model.RunResponse
	runErr      error
	validate    *model.ValidateResponse
	validateErr error
	submitResp  *model.SubmitResponse
	submitErr   error
	block       chan struct{}

	runs      []model.RunRequest
	submits   []model.SubmitRequest
	submitHit atomic.Int32
}

func (g *fakeGateway) StartSession(ctx context.Context, sessionID uuid.UUID) error {
	return g.startErr
}

func (g *fakeGateway) Run(ctx context.Context, req model.RunRequest) (*model.RunResponse, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runs = append(g.runs, req)
	return g.runResp, g.runErr
}

func (g *fakeGateway) Validate(ctx context.Context, req model.ValidateRequest) (*model.ValidateResponse, error) {
	return g.validate, g.validateErr
}

func (g *fakeGateway) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResponse, error) {
	g.submitHit.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits = append(g.submits, req)
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	if g.submitResp == nil {
		return &model.SubmitResponse{Success: true}, nil
	}
	return g.submitResp, nil
}

type fakeContent struct {
	security    model.SecurityConfig
	securityErr error
	tasks       []model.Task
}

func (f *fakeContent) FetchSecurityConfig(ctx context.Context) (model.SecurityConfig, error) {
	return f.security, f.securityErr
}

func (f *fakeContent) FetchTasks(ctx context.Context, subject, level string) ([]model.Task, error) {
	return f.tasks, nil
}

type fakePresenter struct {
	mu            sync.Mutex
	fullscreenErr error
	fullscreenReq int
	warnings      []string
	notices       []string
	armed         []proctor.SignalKind
	disarmed      []proctor.SignalKind
	submitted     []model.SubmissionOutcome
	identities    []model.ExamineeProfile
	prompts       []string
	versions      []uint64
	ticks         int
}

func (p *fakePresenter) RequestFullscreen(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fullscreenReq++
	return p.fullscreenErr
}

func (p *fakePresenter) OnSnapshot(snap model.SessionSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions = append(p.versions, snap.Version)
}
func (p *fakePresenter) OnTaskUpdated(model.TaskView)     {}

func (p *fakePresenter) OnArmed(kinds []proctor.SignalKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.armed = kinds
}

func (p *fakePresenter) OnDisarmed(kinds []proctor.SignalKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disarmed = kinds
}

func (p *fakePresenter) OnWarning(message string, _ model.ViolationState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings = append(p.warnings, message)
}

func (p *fakePresenter) OnNotice(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, message)
}

func (p *fakePresenter) OnTick(int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks++
}

func (p *fakePresenter) OnConfirmSubmit(prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
}

func (p *fakePresenter) OnSubmitted(outcome model.SubmissionOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, outcome)
}

func (p *fakePresenter) OnIdentity(profile model.ExamineeProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities = append(p.identities, profile)
}

type fakeIdentity struct {
	profiles []model.ExamineeProfile
}

func (f *fakeIdentity) UpdateProfile(ctx context.Context, profile model.ExamineeProfile) error {
	f.profiles = append(f.profiles, profile)
	return nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []model.ProctorEvent
}

func (f *fakeAudit) Record(ctx context.Context, event model.ProctorEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeAudit) kinds() []model.ProctorEventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ProctorEventKind, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

// ─── Harness ────────────────────────────────────────────────────────

type harness struct {
	ctrl      *ExamSessionController
	gateway   *fakeGateway
	content   *fakeContent
	presenter *fakePresenter
	identity  *fakeIdentity
	audit     *fakeAudit
	clock     clockwork.FakeClock
}

func testProctorConfig() config.ProctorConfig {
	return config.ProctorConfig{
		ExamDuration:      time.Hour,
		MaxViolations:     3,
		ViolationCooldown: 500 * time.Millisecond,
		BlurGrace:         100 * time.Millisecond,
		DevtoolsThreshold: 160,
		DevtoolsPoll:      time.Second,
		FullscreenTimeout: time.Second,
	}
}

func sampleTasks() []model.Task {
	return []model.Task{
		{ID: "1", TaskID: "1", PartID: "a", Title: "Sum", StarterCode: "print(1)"},
		{ID: "2", TaskID: "2", PartID: "b", Title: "Echo", StarterCode: ""},
	}
}

func newHarness(t *testing.T, security model.SecurityConfig) *harness {
	t.Helper()
	h := &harness{
		gateway:   &fakeGateway{runResp: &model.RunResponse{}, validate: &model.ValidateResponse{}},
		content:   &fakeContent{security: security, tasks: sampleTasks()},
		presenter: &fakePresenter{},
		identity:  &fakeIdentity{},
		audit:     &fakeAudit{},
		clock:     clockwork.NewFakeClock(),
	}
	svc := NewProctorService(h.gateway, h.content, testProctorConfig(), ProctorDeps{
		Identity: h.identity,
		Audit:    h.audit,
		Clock:    h.clock,
	}, zerolog.Nop())
	h.ctrl = svc.NewSession("alice", "python", "1", h.presenter)

	ctx := context.Background()
	h.ctrl.LoadSecurityConfig(ctx)
	require.NoError(t, h.ctrl.LoadTasks(ctx))
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))
	require.NoError(t, h.ctrl.StartExam(ctx))
	t.Cleanup(h.ctrl.Close)
}

func hidden() proctor.Signal {
	return proctor.Signal{Kind: proctor.SignalVisibilityChange, Hidden: true}
}

// ─── Lifecycle ──────────────────────────────────────────────────────

func TestController_SecurityConfigFailSecure(t *testing.T) {
	h := &harness{}
	content := &fakeContent{securityErr: errors.New("connection refused"), tasks: sampleTasks()}
	svc := NewProctorService(&fakeGateway{}, content, testProctorConfig(), ProctorDeps{Clock: clockwork.NewFakeClock()}, zerolog.Nop())
	h.ctrl = svc.NewSession("alice", "python", "1", &fakePresenter{})

	cfg := h.ctrl.LoadSecurityConfig(context.Background())
	assert.Equal(t, model.FailSecureConfig(), cfg)
	assert.Equal(t, model.FailSecureConfig(), h.ctrl.Snapshot().Security)
}

func TestController_TasksSeededWithStarterCode(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})

	snap := h.ctrl.Snapshot()
	require.Len(t, snap.Tasks, 2)
	assert.Equal(t, "print(1)", snap.Tasks[0].State.Code)
	assert.Equal(t, model.TaskAttempted, snap.Tasks[0].Status)
	assert.Equal(t, model.TaskNotAttempted, snap.Tasks[1].Status)
	assert.Equal(t, 3600, snap.Session.TimeLeft)
	assert.Equal(t, model.ViolationCountInactive, snap.Violations.Count)
}

func TestController_StartSessionFailureLeavesNotReady(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.gateway.startErr = errors.New("503")

	err := h.ctrl.StartSession(context.Background())
	require.Error(t, err)
	assert.False(t, h.ctrl.Session().Ready)
	assert.NotEqual(t, uuid.Nil, h.ctrl.Session().SessionID)

	err = h.ctrl.StartExam(context.Background())
	assert.ErrorIs(t, err, ErrSessionNotReady)
}

func TestController_StartExamFullscreenRefused(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{Fullscreen: true})
	h.presenter.fullscreenErr = errors.New("denied")
	require.NoError(t, h.ctrl.StartSession(context.Background()))

	err := h.ctrl.StartExam(context.Background())
	assert.ErrorIs(t, err, ErrFullscreenRequired)

	s := h.ctrl.Session()
	assert.False(t, s.Started)
	assert.Equal(t, model.PhaseNotStarted, s.Phase)
	assert.Equal(t, model.ViolationCountInactive, h.ctrl.Snapshot().Violations.Count)
	assert.False(t, h.ctrl.monitor.IsArmed())
}

func TestController_StartExamArms(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{Fullscreen: true, TabSwitchWarning: true})
	h.start(t)

	s := h.ctrl.Session()
	assert.True(t, s.Started)
	assert.Equal(t, model.PhaseRunning, s.Phase)
	assert.Equal(t, 1, h.presenter.fullscreenReq)
	assert.Equal(t, 0, h.ctrl.Snapshot().Violations.Count)
	assert.Contains(t, h.presenter.armed, proctor.SignalFullscreenChange)
	assert.Contains(t, h.presenter.armed, proctor.SignalVisibilityChange)
	assert.True(t, h.ctrl.countdown.Running())
	assert.Equal(t, []model.ProctorEventKind{model.EventKindStarted}, h.audit.kinds())

	assert.ErrorIs(t, h.ctrl.StartExam(context.Background()), ErrAlreadyStarted)
}

// ─── Run / Validate ─────────────────────────────────────────────────

func TestController_RunCell(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.start(t)
	ctx := context.Background()

	out := "3\n"
	h.gateway.runResp = &model.RunResponse{Stdout: &out}
	require.NoError(t, h.ctrl.RunCell(ctx, "1"))

	view := h.ctrl.Snapshot().Tasks[0]
	require.NotNil(t, view.State.LastResult)
	assert.Equal(t, "3\n", *view.State.LastResult.Stdout)
	require.NotNil(t, view.State.Validated)
	assert.False(t, *view.State.Validated)
	assert.Equal(t, "", h.gateway.runs[0].Input)
	assert.Equal(t, "1", h.gateway.runs[0].QuestionID)
	assert.Equal(t, "a", h.gateway.runs[0].PartID)
	assert.Equal(t, "alice", h.gateway.runs[0].Username)
}

func TestController_RunCellStderrKeepsUnvalidated(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.start(t)

	errOut := "NameError"
	h.gateway.runResp = &model.RunResponse{Stderr: &errOut}
	require.NoError(t, h.ctrl.RunCell(context.Background(), "1"))

	view := h.ctrl.Snapshot().Tasks[0]
	assert.Nil(t, view.State.Validated)
	assert.True(t, view.State.LastResult.HasError())
}

func TestController_RunCellCustomInput(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.start(t)
	ctx := context.Background()

	require.NoError(t, h.ctrl.SetCustomInput("1", "42", false))
	require.NoError(t, h.ctrl.RunCell(ctx, "1"))
	require.NoError(t, h.ctrl.SetCustomInput("1", "42", true))
	require.NoError(t, h.ctrl.RunCell(ctx, "1"))

	require.Len(t, h.gateway.runs, 2)
	assert.Equal(t, "", h.gateway.runs[0].Input)
	assert.Equal(t, "42", h.gateway.runs[1].Input)
}

func TestController_RunCellNetworkError(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.start(t)
	h.gateway.runErr = errors.New("dial tcp: connection refused")

	require.NoError(t, h.ctrl.RunCell(context.Background(), "1"))

	view := h.ctrl.Snapshot().Tasks[0]
	require.NotNil(t, view.State.LastResult)
	assert.Equal(t, MsgExecutionUnreachable, *view.State.LastResult.Stderr)
	assert.Nil(t, view.State.Validated)
	assert.False(t, h.ctrl.Snapshot().Executing)
}

func TestController_RunCellGuards(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	ctx := context.Background()

	assert.ErrorIs(t, h.ctrl.RunCell(ctx, "1"), ErrSessionNotReady)
	h.start(t)

	assert.ErrorIs(t, h.ctrl.RunCell(ctx, "2"), ErrEmptyCode)
	assert.ErrorIs(t, h.ctrl.RunCell(ctx, "nope"), ErrUnknownTask)

	h.gateway.block = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- h.ctrl.RunCell(ctx, "1") }()

	assert.Eventually(t, func() bool { return h.ctrl.Snapshot().Executing }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.ctrl.ValidateCell(ctx, "1"), ErrExecutionInFlight)

	close(h.gateway.block)
	require.NoError(t, <-done)
	assert.False(t, h.ctrl.Snapshot().Executing)
}

func TestController_ValidateCell(t *testing.T) {
	cases := []struct {
		name    string
		results []bool
		err     error
		want    bool
	}{
		{"all passed", []bool{true, true}, nil, true},
		{"one failed", []bool{true, false}, nil, false},
		{"no tests", []bool{}, nil, false},
		{"network error", nil, errors.New("timeout"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, model.SecurityConfig{})
			h.start(t)
			h.gateway.validate = &model.ValidateResponse{TestResults: tc.results}
			h.gateway.validateErr = tc.err

			require.NoError(t, h.ctrl.ValidateCell(context.Background(), "1"))

			view := h.ctrl.Snapshot().Tasks[0]
			require.NotNil(t, view.State.Validated)
			assert.Equal(t, tc.want, *view.State.Validated)
			if tc.err != nil {
				assert.Equal(t, MsgValidationFailed, *view.State.LastResult.Stderr)
			}
		})
	}
}

func TestController_EditResetsResultAndVerdict(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.start(t)
	h.gateway.validate = &model.ValidateResponse{TestResults: []bool{true}}

	require.NoError(t, h.ctrl.ValidateCell(context.Background(), "1"))
	require.Equal(t, model.TaskPassed, h.ctrl.Snapshot().Tasks[0].Status)

	require.NoError(t, h.ctrl.EditCode("1", "print(2)"))
	view := h.ctrl.Snapshot().Tasks[0]
	assert.Nil(t, view.State.LastResult)
	assert.Nil(t, view.State.Validated)
	assert.Equal(t, "print(2)", view.State.Code)
	assert.Equal(t, model.TaskAttempted, view.Status)
}

// ─── Violations ─────────────────────────────────────────────────────

func TestController_ViolationsWarnThenForceSubmitOnce(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{TabSwitchWarning: true})
	h.start(t)

	for i := 0; i < 3; i++ {
		h.ctrl.HandleSignal(hidden())
		h.clock.Advance(time.Second)
	}
	require.Len(t, h.presenter.warnings, 3)
	assert.Contains(t, h.presenter.warnings[0], "This is violation 1 of 3.")
	assert.Contains(t, h.presenter.warnings[2], "FINAL WARNING")
	assert.Equal(t, model.PhaseRunning, h.ctrl.Session().Phase)

	h.ctrl.HandleSignal(hidden())
	h.clock.Advance(time.Second)
	h.ctrl.HandleSignal(hidden())

	assert.EqualValues(t, 1, h.gateway.submitHit.Load())
	s := h.ctrl.Session()
	assert.True(t, s.FinalSubmitted)
	assert.Equal(t, model.PhaseCompleted, s.Phase)
	assert.Equal(t, model.SubmitViolations, s.SubmitReason)
	assert.Equal(t, 4, h.ctrl.Snapshot().Violations.Count)
	assert.Len(t, h.presenter.warnings, 3)
	assert.False(t, h.ctrl.monitor.IsArmed())
}

func TestController_ViolationBurstCountsOnce(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{TabSwitchWarning: true})
	h.start(t)

	h.ctrl.HandleSignal(hidden())
	h.ctrl.HandleSignal(proctor.Signal{Kind: proctor.SignalKeyDown, Key: "F12"})

	assert.Equal(t, 1, h.ctrl.Snapshot().Violations.Count)
	assert.Len(t, h.presenter.warnings, 1)
}

func TestController_ClipboardNotice(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{Paste: true})
	h.start(t)

	out := h.ctrl.HandleSignal(proctor.Signal{Kind: proctor.SignalPaste})
	assert.True(t, out.PreventDefault)
	assert.Equal(t, []string{`The "paste" action is disabled during the exam.`}, h.presenter.notices)
	assert.Equal(t, 0, h.ctrl.Snapshot().Violations.Count)
}

func TestController_SignalsIgnoredBeforeStart(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{TabSwitchWarning: true})

	out := h.ctrl.HandleSignal(hidden())
	assert.False(t, out.PreventDefault)
	assert.Empty(t, h.presenter.warnings)
	assert.Equal(t, model.ViolationCountInactive, h.ctrl.Snapshot().Violations.Count)
}

// ─── Submission ─────────────────────────────────────────────────────

func TestController_ConfirmFlow(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.start(t)
	ctx := context.Background()

	_, err := h.ctrl.ConfirmSubmit(ctx)
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	require.NoError(t, h.ctrl.AttemptSubmit())
	assert.Equal(t, []string{MsgConfirmSubmit}, h.presenter.prompts)
	assert.True(t, h.ctrl.Snapshot().ConfirmPending)

	h.ctrl.CancelSubmit()
	assert.False(t, h.ctrl.Snapshot().ConfirmPending)
	assert.Equal(t, model.PhaseRunning, h.ctrl.Session().Phase)

	require.NoError(t, h.ctrl.AttemptSubmit())
	outcome, err := h.ctrl.ConfirmSubmit(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SubmitManual, outcome.Reason)
	assert.Equal(t, MsgSubmitted, outcome.Message)
	assert.True(t, outcome.Delivered)
}

func TestController_SubmitBuildsAnswers(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.start(t)
	ctx := context.Background()

	h.gateway.validate = &model.ValidateResponse{TestResults: []bool{true}}
	require.NoError(t, h.ctrl.ValidateCell(ctx, "1"))

	_, err := h.ctrl.SubmitExam(ctx, model.SubmitManual)
	require.NoError(t, err)

	require.Len(t, h.gateway.submits, 1)
	req := h.gateway.submits[0]
	assert.False(t, req.AllPassed)
	assert.Equal(t, []model.Answer{
		{QuestionID: "1", PartID: "a", Code: "print(1)", Passed: true},
		{QuestionID: "2", PartID: "b", Code: "", Passed: false},
	}, req.Answers)
	assert.Equal(t, h.ctrl.Session().SessionID.String(), req.SessionID)
}

func TestController_SimultaneousTriggersSubmitOnce(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{TabSwitchWarning: true})
	h.start(t)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for _, reason := range []model.SubmitReason{model.SubmitTimeout, model.SubmitManual, model.SubmitViolations} {
		wg.Add(1)
		go func(r model.SubmitReason) {
			defer wg.Done()
			if _, err := h.ctrl.SubmitExam(context.Background(), r); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrAlreadySubmitted)
			}
		}(reason)
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, 1, h.gateway.submitHit.Load())
	assert.Len(t, h.presenter.submitted, 1)
}

func TestController_TimeoutAfterFullCountdown(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{TabSwitchWarning: true})
	h.start(t)

	for i := 0; i < 3599; i++ {
		require.True(t, h.ctrl.countdown.Tick())
	}
	assert.EqualValues(t, 0, h.gateway.submitHit.Load())
	assert.Equal(t, 1, h.ctrl.Session().TimeLeft)

	require.True(t, h.ctrl.countdown.Tick())
	assert.EqualValues(t, 1, h.gateway.submitHit.Load())
	assert.False(t, h.ctrl.countdown.Running())
	assert.False(t, h.ctrl.countdown.Tick())

	s := h.ctrl.Session()
	assert.Equal(t, model.SubmitTimeout, s.SubmitReason)
	assert.Equal(t, model.PhaseCompleted, s.Phase)
	assert.EqualValues(t, 1, h.gateway.submitHit.Load())
}

func TestController_SubmitFailureStillCompletes(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{TabSwitchWarning: true})
	h.start(t)
	h.gateway.submitErr = errors.New("Server responded with status: 500")

	outcome, err := h.ctrl.SubmitExam(context.Background(), model.SubmitManual)
	require.NoError(t, err)
	assert.False(t, outcome.Delivered)
	assert.Equal(t, "An error occurred during submission: Server responded with status: 500", outcome.Message)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, model.PhaseCompleted, snap.Session.Phase)
	assert.Equal(t, outcome.Message, snap.SubmissionMessage)
	assert.False(t, h.ctrl.monitor.IsArmed())
	assert.NotEmpty(t, h.presenter.disarmed)
}

func TestController_UpdatedUserPropagates(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.start(t)
	profile := &model.ExamineeProfile{Username: "alice", Progress: map[string]map[string]string{"python": {"2": "unlocked"}}}
	h.gateway.submitResp = &model.SubmitResponse{Success: true, UpdatedUser: profile}

	outcome, err := h.ctrl.SubmitExam(context.Background(), model.SubmitManual)
	require.NoError(t, err)
	assert.Equal(t, MsgLevelUnlocked, outcome.Message)
	assert.Equal(t, []model.ExamineeProfile{*profile}, h.identity.profiles)
	assert.Equal(t, []model.ExamineeProfile{*profile}, h.presenter.identities)
}

func TestController_DisarmedAfterCompletion(t *testing.T) {
	h := newHarness(t, model.FailSecureConfig())
	h.start(t)

	_, err := h.ctrl.SubmitExam(context.Background(), model.SubmitManual)
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	out := h.ctrl.HandleSignal(proctor.Signal{Kind: proctor.SignalCopy})
	assert.False(t, out.PreventDefault)
	h.ctrl.HandleSignal(hidden())

	assert.Empty(t, h.presenter.warnings)
	assert.Empty(t, h.ctrl.monitor.Armed())
	assert.False(t, h.ctrl.countdown.Running())
	assert.Equal(t, 0, h.ctrl.Snapshot().Violations.Count)

	_, err = h.ctrl.SubmitExam(context.Background(), model.SubmitTimeout)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, []model.ProctorEventKind{model.EventKindStarted, model.EventKindSubmitted}, h.audit.kinds())
}

// ─── Fullscreen recovery ────────────────────────────────────────────

func TestController_ReEnterFullscreenFailureForcesSubmit(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{Fullscreen: true})
	h.start(t)

	h.ctrl.HandleSignal(proctor.Signal{Kind: proctor.SignalFullscreenChange, Fullscreen: false})
	require.Len(t, h.presenter.warnings, 1)
	assert.Contains(t, h.presenter.warnings[0], "exited fullscreen")

	h.presenter.fullscreenErr = errors.New("denied")
	err := h.ctrl.AcknowledgeWarning(context.Background())
	assert.ErrorIs(t, err, ErrFullscreenRequired)

	s := h.ctrl.Session()
	assert.Equal(t, model.SubmitFullscreen, s.SubmitReason)
	assert.Equal(t, model.PhaseCompleted, s.Phase)
	assert.Empty(t, h.ctrl.Snapshot().Warning)
	assert.EqualValues(t, 1, h.gateway.submitHit.Load())
}

func TestController_ReEnterFullscreenSuccess(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{Fullscreen: true})
	h.start(t)

	h.ctrl.HandleSignal(proctor.Signal{Kind: proctor.SignalFullscreenChange, Fullscreen: false})
	require.NoError(t, h.ctrl.AcknowledgeWarning(context.Background()))

	assert.Equal(t, 2, h.presenter.fullscreenReq)
	assert.Equal(t, model.PhaseRunning, h.ctrl.Session().Phase)
	assert.True(t, h.ctrl.monitor.Fullscreen())
}

func TestController_CloseDoesNotSubmit(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{TabSwitchWarning: true})
	h.start(t)

	h.ctrl.Close()
	h.ctrl.HandleSignal(hidden())

	assert.EqualValues(t, 0, h.gateway.submitHit.Load())
	assert.False(t, h.ctrl.monitor.IsArmed())
	assert.False(t, h.ctrl.countdown.Running())
	assert.Empty(t, h.presenter.warnings)
}

// closingPresenter closes the session while the page is still answering the
// fullscreen request, as happens when the socket drops mid-request.
type closingPresenter struct {
	*fakePresenter
	ctrl *ExamSessionController
}

func (p *closingPresenter) RequestFullscreen(ctx context.Context) error {
	p.ctrl.Close()
	return nil
}

func TestController_CloseDuringFullscreenRequestStaysDisarmed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gw := &fakeGateway{runResp: &model.RunResponse{}, validate: &model.ValidateResponse{}}
	content := &fakeContent{
		security: model.SecurityConfig{Fullscreen: true, TabSwitchWarning: true},
		tasks:    sampleTasks(),
	}
	audit := &fakeAudit{}
	svc := NewProctorService(gw, content, testProctorConfig(), ProctorDeps{
		Audit: audit,
		Clock: clock,
	}, zerolog.Nop())

	presenter := &closingPresenter{fakePresenter: &fakePresenter{}}
	ctrl := svc.NewSession("alice", "python", "1", presenter)
	presenter.ctrl = ctrl

	ctx := context.Background()
	ctrl.LoadSecurityConfig(ctx)
	require.NoError(t, ctrl.LoadTasks(ctx))
	require.NoError(t, ctrl.StartSession(ctx))

	err := ctrl.StartExam(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)

	assert.False(t, ctrl.monitor.IsArmed())
	assert.False(t, ctrl.countdown.Running())
	assert.Equal(t, model.PhaseNotStarted, ctrl.Session().Phase)
	assert.Empty(t, presenter.armed)

	clock.Advance(5 * time.Second)
	ctrl.HandleSignal(hidden())

	assert.Equal(t, 3600, ctrl.Session().TimeLeft)
	assert.Zero(t, presenter.ticks)
	assert.Empty(t, presenter.warnings)
	assert.EqualValues(t, 0, gw.submitHit.Load())
	assert.Empty(t, audit.kinds())
}

func TestController_ClosedSessionRejectsCommands(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{TabSwitchWarning: true})
	h.start(t)
	h.ctrl.Close()

	ctx := context.Background()
	assert.ErrorIs(t, h.ctrl.StartSession(ctx), ErrSessionClosed)
	assert.ErrorIs(t, h.ctrl.AttemptSubmit(), ErrSessionClosed)
	assert.ErrorIs(t, h.ctrl.RunCell(ctx, "1"), ErrSessionClosed)
	assert.ErrorIs(t, h.ctrl.ValidateCell(ctx, "1"), ErrSessionClosed)
	assert.Empty(t, h.presenter.prompts)
	assert.Empty(t, h.gateway.runs)
}

func TestController_SnapshotsPublishedInVersionOrder(t *testing.T) {
	h := newHarness(t, model.SecurityConfig{})
	h.start(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.ctrl.CancelSubmit()
		}()
		go func() {
			defer wg.Done()
			_ = h.ctrl.EditCode("2", "print(2)")
			h.ctrl.publish(context.Background())
		}()
	}
	wg.Wait()

	h.presenter.mu.Lock()
	versions := append([]uint64(nil), h.presenter.versions...)
	h.presenter.mu.Unlock()

	require.GreaterOrEqual(t, len(versions), 40)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1], "snapshot %d arrived out of order", i)
	}
	assert.Greater(t, h.ctrl.Snapshot().Version, versions[len(versions)-1])
}
