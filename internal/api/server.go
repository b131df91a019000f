package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/bluebox"
	"github.com/bluefox-project/bluefox/internal/config"
	"github.com/bluefox-project/bluefox/internal/db"
	"github.com/bluefox-project/bluefox/internal/events"
	"github.com/bluefox-project/bluefox/internal/lobby"
	intnet "github.com/bluefox-project/bluefox/internal/network"
	"github.com/bluefox-project/bluefox/internal/util"
)

// Server hosts the two HTTP surfaces: the tunnel endpoint on the client
// port and the admin REST API on its own port.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	svc      *lobby.Service
	tunnel   *bluebox.Tunnel
	conns    *intnet.ConnectionRegistry
	mdb      *db.ModerationDatabase

	adminServer  *http.Server
	tunnelServer *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, svc *lobby.Service,
	tunnel *bluebox.Tunnel, conns *intnet.ConnectionRegistry, mdb *db.ModerationDatabase) *Server {
	// Set Gin mode based on log level
	if cfg.ApplicationData.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		svc:      svc,
		tunnel:   tunnel,
		conns:    conns,
		mdb:      mdb,
	}
}

// Start runs both HTTP servers until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() { errCh <- s.startTunnel(ctx) }()
	go func() { errCh <- s.startAdmin(ctx) }()

	// First fatal error wins; both servers share the context for shutdown.
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

// startTunnel serves the BlueBox endpoint game clients poll. It is plain
// HTTP on the client port; clients behind restrictive firewalls cannot
// negotiate anything fancier.
func (s *Server) startTunnel(ctx context.Context) error {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.POST("/BlueBox/BlueBox.do", s.handleBlueBox)

	srv := s.cfg.GetServerData()
	addr := fmt.Sprintf("%s:%d", srv.BindAddress, srv.HTTPPort)
	s.tunnelServer = &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Poll responses are small and immediate; long timeouts only
		// pin dead client sockets.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tunnel server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("tunnel HTTP server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.tunnelServer.Shutdown(shutdownCtx)
	}()

	if err := s.tunnelServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("tunnel server error: %w", err)
	}
	return nil
}

// startAdmin serves the operator REST API.
func (s *Server) startAdmin(ctx context.Context) error {
	router := s.buildAdminRouter()

	srv := s.cfg.GetServerData()
	security := s.cfg.GetApplicationData().Security

	addr := fmt.Sprintf("%s:%d", srv.BindAddress, srv.APIPort)
	s.adminServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if security.TLSEnabled {
		if !util.FileExists(security.TLSCertFile) || !util.FileExists(security.TLSKeyFile) {
			log.Info().Msg("TLS certificate missing, generating self-signed pair")
			if err := util.GenerateSelfSignedCert(security.TLSCertFile, security.TLSKeyFile); err != nil {
				return fmt.Errorf("failed to generate TLS certificate: %w", err)
			}
		}
		s.adminServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	// SO_REUSEADDR for immediate rebinding after restart
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Bool("tls", security.TLSEnabled).Msg("admin API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.adminServer.Shutdown(shutdownCtx)
	}()

	if security.TLSEnabled {
		err = s.adminServer.Serve(tls.NewListener(ln, s.adminServer.TLSConfig))
	} else {
		err = s.adminServer.Serve(ln)
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildAdminRouter creates the Gin router with all admin routes and
// middleware.
func (s *Server) buildAdminRouter() *gin.Engine {
	router := gin.New()

	security := s.cfg.GetApplicationData().Security

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	// CORS
	allowedOrigins := security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(security.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	auth := NewAuthMiddleware(s.cfg)

	// ---- Public endpoints (no auth required) ----
	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/server_info", s.handleGetServerInfo)
		public.GET("/version", s.handleGetVersion)
	}

	// ---- Protected endpoints ----
	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())

	monitor := protected.Group("/monitor")
	{
		monitor.GET("/sessions", s.handleGetSessions)
		monitor.GET("/rooms", s.handleGetRooms)
		monitor.GET("/cpu", s.handleGetCPUUsage)
		monitor.GET("/memory", s.handleGetMemoryUsage)
		monitor.GET("/log_entries", s.handleGetLogEntries)
		monitor.GET("/alerts", s.handleGetAlerts)
		monitor.POST("/alerts/:id/ack", s.handleAcknowledgeAlert)
	}

	control := protected.Group("/control")
	{
		control.POST("/kick/:session_id", s.handleKickSession)
		control.POST("/close_room/:room_id", s.handleCloseRoom)
		control.GET("/bans", s.handleGetBans)
		control.POST("/bans", s.handleAddBan)
		control.DELETE("/bans/:provider/:player_id", s.handleRemoveBan)
	}

	configure := protected.Group("/configure")
	{
		configure.GET("/get_config", s.handleGetConfig)
		configure.POST("/set_server_data", s.handleSetServerData)
		configure.POST("/set_app_data", s.handleSetAppData)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops both HTTP servers.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if s.tunnelServer != nil {
		if err := s.tunnelServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
