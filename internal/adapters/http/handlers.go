package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/VoiceAgent/internal/app/loop"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrRateLimited = errors.New("too many messages")

type ChatRequest struct {
	Text string `json:"text"`
}

type ChatOpenRequest struct {
	Open bool `json:"open"`
}

type ErrorResponse struct {
	Error string         `json:"error"`
	State *orch.Snapshot `json:"state,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// act runs fn on the loop and answers with the resulting snapshot.
func (s *Server) act(c *gin.Context, fn func(o *orch.Orchestrator) error) {
	var (
		snap orch.Snapshot
		err  error
	)
	if callErr := loop.Call(c.Request.Context(), s.queue, func() {
		if fn != nil {
			err = fn(s.orch)
		}
		snap = s.orch.Snapshot()
	}); callErr != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: callErr.Error()})
		return
	}
	if err != nil {
		log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("action rejected")
		c.JSON(statusOf(err), ErrorResponse{Error: err.Error(), State: &snap})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, orch.ErrTogglePending):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (s *Server) handleState(c *gin.Context) { s.act(c, nil) }

func (s *Server) handleStart(c *gin.Context) {
	s.act(c, func(o *orch.Orchestrator) error {
		o.StartSession()
		return nil
	})
}

func (s *Server) handleEnd(c *gin.Context) {
	s.act(c, func(o *orch.Orchestrator) error {
		o.EndSession()
		return nil
	})
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat request"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.ErrEmptyMessage.Error()})
		return
	}
	if !s.chat.Allow(c.GetString("client_token")) {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: ErrRateLimited.Error()})
		return
	}
	s.act(c, func(o *orch.Orchestrator) error {
		return o.SendChat(req.Text)
	})
}

func (s *Server) handleChatOpen(c *gin.Context) {
	var req ChatOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat open request"})
		return
	}
	s.act(c, func(o *orch.Orchestrator) error {
		o.SetChatOpen(req.Open)
		return nil
	})
}

func (s *Server) handleToggle(c *gin.Context) {
	kind, err := domain.ParseDeviceKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	s.act(c, func(o *orch.Orchestrator) error {
		return o.ToggleDevice(kind)
	})
}

func (s *Server) handleAnimationComplete(c *gin.Context) {
	s.act(c, func(o *orch.Orchestrator) error {
		o.AnimationComplete()
		return nil
	})
}

func (s *Server) handleDismissImage(c *gin.Context) {
	s.act(c, func(o *orch.Orchestrator) error {
		o.DismissImage()
		return nil
	})
}

// handleStateSocket pushes a snapshot on connect and after every change.
func (s *Server) handleStateSocket(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("client", client).Msg("ws upgrade")
		return
	}

	v := newViewer(client, ws)
	vctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel

	// Binding and the first frame happen on the loop so no change slips between them.
	if err := loop.Call(c.Request.Context(), s.queue, func() {
		if v.isClosed() {
			return
		}
		data, err := encodeState(s.orch.Snapshot())
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("marshal state")
			return
		}
		_ = v.TrySend(data)
		s.hub.Bind(v)
	}); err != nil {
		v.Close()
		return
	}

	pongWait := s.pingPeriod * 10 / 9
	go v.writePump(vctx, s.pingPeriod)
	go v.readPump(s.readLimit, pongWait, func() { s.hub.Unbind(v) })
}
