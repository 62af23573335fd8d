// Package server exposes the login flow and the statistics envelope over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gauthierbraillon/infographic/internal/feed"
	"github.com/gauthierbraillon/infographic/internal/logging"
	"github.com/gauthierbraillon/infographic/internal/statistics"
	"github.com/gauthierbraillon/infographic/internal/store"
	"github.com/gauthierbraillon/infographic/pkg/oauth"
)

const (
	SessionCookie = "infographic_session"
	StateCookie   = "infographic_state"

	SuccessPath = "/you-rock"
	FailurePath = "/uh-oh"

	stateCookieMaxAge   = 10 * 60
	defaultHistoryLimit = 10
)

// Authenticator runs the OAuth authorization code flow.
type Authenticator interface {
	GenerateAuthURL() (string, string)
	ExchangeCode(ctx context.Context, code string) (*oauth.Token, error)
}

// FeedClient reads the signed-in user's profile and feed.
type FeedClient interface {
	FetchProfile(ctx context.Context) (feed.User, error)
	FetchFeed(ctx context.Context, limit int) ([]feed.Post, error)
}

// ClientFactory builds a FeedClient acting with the given token.
type ClientFactory func(token *oauth.Token) FeedClient

// History persists computed envelopes.
type History interface {
	Save(ctx context.Context, snap store.Snapshot) (store.Snapshot, error)
	List(ctx context.Context, ownerID int64, limit int) ([]store.Snapshot, error)
}

// Option configures the Server.
type Option func(*Server)

// WithHistory saves every non-empty envelope.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithFeedLimit sets how many stories are requested per statistics run.
func WithFeedLimit(limit int) Option {
	return func(s *Server) { s.feedLimit = limit }
}

func WithSessions(sessions *SessionStore) Option {
	return func(s *Server) { s.sessions = sessions }
}

func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithSecureCookies marks cookies Secure, for deployments behind TLS.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) { s.secureCookies = secure }
}

type Server struct {
	auth    Authenticator
	clients ClientFactory
	engine  *statistics.Engine

	sessions      *SessionStore
	history       History
	metrics       *Metrics
	logger        logging.Logger
	feedLimit     int
	version       string
	secureCookies bool
}

func New(auth Authenticator, clients ClientFactory, engine *statistics.Engine, opts ...Option) *Server {
	s := &Server{
		auth:     auth,
		clients:  clients,
		engine:   engine,
		sessions: NewSessionStore(0, 30*time.Minute),
		logger:   logging.Discard(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = NewMetrics(s.version, s.sessions)
	return s
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(s.recovery())
	router.Use(s.requestLogger())
	router.Use(s.metrics.Middleware())

	router.GET("/login", s.handleLogin)
	router.GET("/callback", s.handleCallback)
	router.GET("/logout", s.handleLogout)
	router.GET("/statistics", s.handleStatistics)
	router.GET("/history", s.handleHistory)
	router.GET(SuccessPath, func(c *gin.Context) {
		c.String(http.StatusOK, "You're signed in. Your infographic is at /statistics.")
	})
	router.GET(FailurePath, func(c *gin.Context) {
		c.String(http.StatusOK, "Something went wrong while signing you in. Please try /login again.")
	})
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", s.metrics.Handler())

	return router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) handleLogin(c *gin.Context) {
	authURL, state := s.auth.GenerateAuthURL()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(StateCookie, state, stateCookieMaxAge, "/", "", s.secureCookies, true)
	c.Redirect(http.StatusFound, authURL)
}

func (s *Server) handleCallback(c *gin.Context) {
	log := s.logger.WithField("client_ip", c.ClientIP())

	expected, _ := c.Cookie(StateCookie)
	c.SetCookie(StateCookie, "", -1, "/", "", s.secureCookies, true)

	if reason := c.Query("error"); reason != "" {
		log.WithFields(logging.Fields{
			"error":       reason,
			"description": c.Query("error_description"),
		}).Error("Error encountered during authorization code request")
		c.Redirect(http.StatusFound, FailurePath)
		return
	}

	code := c.Query("code")
	if code == "" {
		log.Warn("No authorization code or error message detected at redirection endpoint")
		c.Redirect(http.StatusFound, FailurePath)
		return
	}
	if expected == "" || c.Query("state") != expected {
		log.Warn("OAuth state mismatch, rejecting callback")
		c.Redirect(http.StatusFound, FailurePath)
		return
	}

	log.WithField("code", logging.Anonymize(code)).Info("Requesting access token")
	token, err := s.auth.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		log.WithError(err).Error("Access token request failed")
		c.Redirect(http.StatusFound, FailurePath)
		return
	}

	log.WithField("token", logging.Anonymize(token.AccessToken)).Info("Access token received, requesting profile")
	user, err := s.clients(token).FetchProfile(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Profile request failed")
		c.Redirect(http.StatusFound, FailurePath)
		return
	}

	sess := s.sessions.Create(user, token)
	log.WithFields(logging.Fields{
		"session": logging.Anonymize(sess.ID),
		"user_id": logging.Anonymize(strconv.FormatInt(user.ID, 10)),
	}).Info("Session started")

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sess.ID, 0, "/", "", s.secureCookies, true)
	c.Redirect(http.StatusFound, SuccessPath)
}

func (s *Server) handleLogout(c *gin.Context) {
	if id, err := c.Cookie(SessionCookie); err == nil {
		s.sessions.Delete(id)
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", s.secureCookies, true)
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) session(c *gin.Context) (Session, bool) {
	id, _ := c.Cookie(SessionCookie)
	sess, err := s.sessions.Get(id)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in - visit /login first"})
		return Session{}, false
	}
	c.Set("session", logging.Anonymize(sess.ID))
	return sess, true
}

func (s *Server) handleStatistics(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := s.logger.WithFields(logging.Fields{
		"session": logging.Anonymize(sess.ID),
		"user_id": logging.Anonymize(strconv.FormatInt(sess.User.ID, 10)),
	})

	posts, err := s.clients(sess.Token).FetchFeed(ctx, s.feedLimit)
	if err != nil {
		log.WithError(err).Error("Feed request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	log.WithField("posts", len(posts)).Info("Received stories, collecting statistics")

	env, err := s.engine.Run(ctx, sess.User, posts)
	if err != nil {
		log.WithError(err).Warn("Statistics run abandoned")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	data, err := env.MarshalJSON()
	if err != nil {
		log.WithError(err).Error("Failed to encode statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode statistics"})
		return
	}
	s.metrics.ObserveEnvelope(len(posts), env)

	if s.history != nil && !env.Empty() {
		_, err := s.history.Save(ctx, store.Snapshot{
			OwnerID:   sess.User.ID,
			OwnerName: sess.User.Name,
			PostCount: len(posts),
			Envelope:  data,
		})
		if err != nil {
			log.WithError(err).Warn("Failed to save statistics history")
		}
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) handleHistory(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is not enabled"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	snaps, err := s.history.List(c.Request.Context(), sess.User.ID, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list statistics history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	c.JSON(http.StatusOK, snaps)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "infographic",
		"version":  s.version,
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.logger.WithFields(logging.Fields{
			"status":    c.Writer.Status(),
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"latency":   time.Since(start),
			"client_ip": c.ClientIP(),
			"session":   c.GetString("session"),
		}).Info("HTTP request")
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logging.Fields{
					"error":  err,
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				}).Error("Request handler panic")
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}
