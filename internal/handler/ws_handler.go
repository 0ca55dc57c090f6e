package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ProfileReader reads the cached examinee profile.
type ProfileReader interface {
	GetProfile(ctx context.Context, username string) (*model.ExamineeProfile, error)
}

// WSHandler handles the examinee exam session stream.
type WSHandler struct {
	proctor  *service.ProctorService
	profiles ProfileReader
	metrics  *metrics.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(proctor *service.ProctorService, profiles ProfileReader, m *metrics.Metrics, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		proctor:  proctor,
		profiles: profiles,
		metrics:  m,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamSessionStream godoc
// WS /ws/v1/exams/:subject/:level/session?token=
// Upgrades to WebSocket and drives one examinee's exam session.
func (h *WSHandler) ExamSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	subject, level := c.Param("subject"), c.Param("level")
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(level) == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	h.metrics.WSConnected(1)
	defer h.metrics.WSConnected(-1)

	wsLog := h.log.With().
		Str("request_id", response.GetRequestID(c)).
		Str("examinee", claims.Username).
		Str("subject", subject).
		Str("level", level).
		Logger()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	presenter := newSessionPresenter(conn, h.metrics, wsLog)
	session := h.proctor.NewSession(claims.Username, subject, level, presenter)
	defer session.Close()

	wsLog.Info().Msg("Examinee connected")

	s := &sessionStream{
		ctx:       ctx,
		conn:      conn,
		session:   session,
		presenter: presenter,
		metrics:   h.metrics,
		log:       wsLog,
	}
	s.sendIdentity(h.profiles, claims.Username)
	go s.prepare()

	for {
		data, err := conn.ReadRaw()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		s.dispatch(data)
	}
}

// sessionStream binds one connection to its session controller.
type sessionStream struct {
	ctx       context.Context
	conn      *ws.Conn
	session   *service.ExamSessionController
	presenter *sessionPresenter
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func (s *sessionStream) sendIdentity(profiles ProfileReader, username string) {
	if profiles == nil {
		return
	}
	profile, err := profiles.GetProfile(s.ctx, username)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read cached profile")
		return
	}
	if profile != nil {
		s.presenter.OnIdentity(*profile)
	}
}

// prepare loads the configuration and tasks and opens the execution
// session. The page may forward signals meanwhile; nothing is armed yet.
func (s *sessionStream) prepare() {
	s.session.LoadSecurityConfig(s.ctx)

	if err := s.session.LoadTasks(s.ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to load tasks")
		s.writeError(response.ErrGatewayUnavailable, "")
		return
	}

	if err := s.session.StartSession(s.ctx); err != nil {
		if errors.Is(err, service.ErrSessionClosed) {
			return
		}
		s.writeError(response.ErrGatewayUnavailable, service.MsgExecutionUnreachable)
		return
	}

	s.write(ws.EventReady, ws.ReadyResponse{Event: ws.EventReady, Snapshot: s.session.Snapshot()})
}

func (s *sessionStream) dispatch(data []byte) {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.writeError(response.ErrInvalidPayload, "")
		return
	}
	s.metrics.RecordWSMessage("in", string(env.Action))

	switch env.Action {
	case ws.ActionPing:
		s.write(ws.EventPong, ws.PongResponse{Event: ws.EventPong})

	case ws.ActionSignal:
		var req ws.SignalRequest
		if !s.decode(data, &req) {
			return
		}
		if out := s.session.HandleSignal(req.Signal); out.PreventDefault {
			s.write(ws.EventBlocked, ws.BlockedResponse{Event: ws.EventBlocked, Signal: req.Signal.Kind})
		}

	case ws.ActionFullscreenResult:
		var req ws.FullscreenResultRequest
		if !s.decode(data, &req) {
			return
		}
		if !s.presenter.resolveFullscreen(req.RequestID, req.Success, req.Error) {
			s.log.Debug().Str("request_id", req.RequestID).Msg("Stale fullscreen result")
		}

	case ws.ActionEditCode:
		var req ws.EditCodeRequest
		if !s.decode(data, &req) {
			return
		}
		s.reply(s.session.EditCode(req.TaskID, req.Code))

	case ws.ActionCustomInput:
		var req ws.CustomInputRequest
		if !s.decode(data, &req) {
			return
		}
		s.reply(s.session.SetCustomInput(req.TaskID, req.Input, req.Enabled))

	case ws.ActionRun, ws.ActionValidate:
		var req ws.TaskRequest
		if !s.decode(data, &req) {
			return
		}
		run := s.session.RunCell
		if env.Action == ws.ActionValidate {
			run = s.session.ValidateCell
		}
		go func() { s.reply(run(s.ctx, req.TaskID)) }()

	case ws.ActionStartExam:
		// Blocks on the page's fullscreen_result, which this loop must read.
		go func() { s.reply(s.session.StartExam(s.ctx)) }()

	case ws.ActionAttemptSubmit:
		s.reply(s.session.AttemptSubmit())

	case ws.ActionCancelSubmit:
		s.session.CancelSubmit()

	case ws.ActionConfirmSubmit:
		go func() {
			_, err := s.session.ConfirmSubmit(s.ctx)
			s.reply(err)
		}()

	case ws.ActionAcknowledgeWarning:
		go func() { s.reply(s.session.AcknowledgeWarning(s.ctx)) }()

	default:
		s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		s.writeError(response.ErrUnknownAction, "unknown action: "+string(env.Action))
	}
}

func (s *sessionStream) decode(data []byte, dst interface{}) bool {
	if fields := validator.Decode(data, dst); fields != nil {
		s.metrics.RecordWSMessage("out", string(ws.EventError))
		s.conn.WriteFieldErrors(string(response.ErrValidation), response.GetMessage(response.ErrValidation), fields)
		return false
	}
	return true
}

// reply reports a failed command; success is visible through state events.
func (s *sessionStream) reply(err error) {
	if err == nil {
		return
	}
	code := sessionErrorCode(err)
	if code == response.ErrInternal {
		s.log.Error().Err(err).Msg("Session command failed")
	}
	s.writeError(code, "")
}

func (s *sessionStream) write(event ws.Event, v interface{}) {
	s.metrics.RecordWSMessage("out", string(event))
	if err := s.conn.WriteTyped(v); err != nil {
		s.log.Debug().Err(err).Str("event", string(event)).Msg("Write failed")
	}
}

func (s *sessionStream) writeError(code response.ErrCode, msg string) {
	if msg == "" {
		msg = response.GetMessage(code)
	}
	s.metrics.RecordWSMessage("out", string(ws.EventError))
	s.conn.WriteError(string(code), msg)
}

// sessionErrorCode maps controller errors to API error codes.
func sessionErrorCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, service.ErrSessionNotReady):
		return response.ErrSessionNotReady
	case errors.Is(err, service.ErrAlreadyStarted):
		return response.ErrExamAlreadyStarted
	case errors.Is(err, service.ErrNotRunning):
		return response.ErrExamNotRunning
	case errors.Is(err, service.ErrAlreadySubmitted):
		return response.ErrExamAlreadySubmitted
	case errors.Is(err, service.ErrUnknownTask):
		return response.ErrUnknownTask
	case errors.Is(err, service.ErrEmptyCode):
		return response.ErrEmptyCode
	case errors.Is(err, service.ErrExecutionInFlight):
		return response.ErrExecutionInFlight
	case errors.Is(err, service.ErrFullscreenRequired):
		return response.ErrFullscreenRequired
	case errors.Is(err, service.ErrConfirmationRequired):
		return response.ErrConfirmationRequired
	case errors.Is(err, service.ErrSessionClosed):
		return response.ErrSessionClosed
	default:
		return response.ErrInternal
	}
}
