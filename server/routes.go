// Package server - Haupt-Router und Server-Setup fuer Embedr
// Beinhaltet: Server-Struct, Router-Registrierung, Middleware, Server-Start
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/embedr/embedr/envconfig"
	"github.com/embedr/embedr/model"
	"github.com/embedr/embedr/store"
	"github.com/embedr/embedr/version"
	"github.com/embedr/embedr/vocab"
)

var mode string = gin.ReleaseMode

// Server verwaltet den HTTP-Server, das Modell und die Sessions
type Server struct {
	addr     net.Addr
	model    *model.ICLTransformer
	vocab    *vocab.Serializer
	store    *store.Store
	sessions *sessionStore
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// NewServer erstellt einen Server fuer das gegebene Modell. Der Store ist
// optional; ohne ihn sind die Studien-Endpunkte deaktiviert.
func NewServer(m *model.ICLTransformer, sv *vocab.Serializer, st *store.Store) *Server {
	sessions := newSessionStore()
	sessions.limit = int(envconfig.MaxSessions())
	return &Server{
		model:    m,
		vocab:    sv,
		store:    st,
		sessions: sessions,
	}
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	if interfaces, err := net.Interfaces(); err == nil {
		for _, iface := range interfaces {
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}

			for _, a := range addrs {
				if parsed, _, err := net.ParseCIDR(a.String()); err == nil {
					if parsed.String() == ip.String() {
						return true
					}
				}
			}
		}
	}

	return false
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	tlds := []string{
		"localhost",
		"local",
		"internal",
	}

	// Pruefe ob der Host eine lokale TLD hat
	for _, tld := range tlds {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert Anfragen von nicht erlaubten Hosts
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() (http.Handler, error) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Embedr is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Embedr is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Inference
	r.POST("/api/predict", s.PredictHandler)

	// Sessions
	r.POST("/api/sessions", s.CreateSessionHandler)
	r.GET("/api/sessions", s.ListSessionsHandler)
	r.POST("/api/sessions/:id/observe", s.ObserveHandler)
	r.POST("/api/sessions/:id/predict", s.SessionPredictHandler)
	r.DELETE("/api/sessions/:id", s.DeleteSessionHandler)

	// Studien-Persistenz
	if s.store != nil {
		r.POST("/api/studies", s.CreateStudyHandler)
		r.GET("/api/studies", s.ListStudiesHandler)
		r.GET("/api/studies/:name", s.GetStudyHandler)
		r.DELETE("/api/studies/:name", s.DeleteStudyHandler)
	}

	return r, nil
}

// Serve startet den HTTP-Server fuer das gegebene Modell
func Serve(ln net.Listener, m *model.ICLTransformer) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: envconfig.LogLevel(),
	})))
	slog.Info("server config", "env", envconfig.Values())

	modelsDir := envconfig.Models()
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}

	st, err := store.New(filepath.Join(modelsDir, "studies.db"))
	if err != nil {
		return fmt.Errorf("open study store: %w", err)
	}
	defer st.Close()

	s := NewServer(m, vocab.Default(), st)
	s.addr = ln.Addr()

	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: h}

	ctx, done := context.WithCancel(context.Background())

	// auf ctrl+c reagieren und sauber herunterfahren
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		done()
	}()

	err = srvr.Serve(ln)
	// Wird der Server vom Signal-Handler geschlossen, auf den ctx warten,
	// sonst den Fehler direkt melden
	if !slices.Contains([]error{http.ErrServerClosed}, err) {
		return err
	}
	<-ctx.Done()
	return nil
}
