package http

import (
	"context"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/config"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenKey = "ct"
	chatLimit      = 10
	chatWindow     = 10 * time.Second
)

// ClientTokenMiddleware gives every browser a stable id kept in the cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Server bridges the session context on the event loop to browser viewers.
type Server struct {
	queue core.Queue
	orch  *orch.Orchestrator
	hub   *Hub
	chat  *RateLimiter

	readLimit  int64
	pingPeriod time.Duration
}

// NewServer subscribes to o. Call it before the loop runs or from the loop.
func NewServer(cfg *config.Config, q core.Queue, o *orch.Orchestrator) *Server {
	s := &Server{
		queue:      q,
		orch:       o,
		hub:        NewHub(nil),
		chat:       NewRateLimiter(chatLimit, chatWindow),
		readLimit:  cfg.ReadLimit,
		pingPeriod: cfg.PingPeriod,
	}
	o.OnChange(func(snap orch.Snapshot) { s.hub.Broadcast(snap) })
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// Close disconnects every state viewer.
func (s *Server) Close() { s.hub.CloseAll() }

func SetupRouter(ctx context.Context, cfg *config.Config, s *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Str("module", "adapters.http").Msg("secret not set, client sessions reset on restart")
	}
	store := cookie.NewStore([]byte(secret))
	r.Use(sessions.Sessions("VoiceAgentSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/state", s.handleState)
	api.POST("/session/start", s.handleStart)
	api.POST("/session/end", s.handleEnd)
	api.POST("/chat", s.handleChat)
	api.POST("/chat/open", s.handleChatOpen)
	api.POST("/devices/:kind/toggle", s.handleToggle)
	api.POST("/view/animation-complete", s.handleAnimationComplete)
	api.POST("/image/dismiss", s.handleDismissImage)
	api.GET("/ws/state", func(c *gin.Context) {
		s.handleStateSocket(ctx, c)
	})

	return r
}
