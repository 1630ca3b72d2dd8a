// Package server runs the loopback channel the widget posts auth events to.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/handler"
	"github.com/BlackMission/idpauth/internal/logger"
	"github.com/BlackMission/idpauth/internal/metrics"
)

const (
	HealthPath  = "/__/auth/iframe/health"
	MessagePath = "/__/auth/iframe"
	MetricsPath = "/metrics"

	defaultReadyTimeout = 5 * time.Second
	readyPollInterval   = 10 * time.Millisecond
)

// Config holds the channel configuration.
type Config struct {
	Host string
	Port int

	// AuthDomain is the widget host; only https://<AuthDomain> may post
	// from a browser. More hosts can be added with AllowAuthDomain.
	AuthDomain string

	// ReadyTimeout bounds the wait for the channel to answer its health
	// check. Zero selects the default.
	ReadyTimeout time.Duration
}

// Deps holds the channel dependencies.
type Deps struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Channel wraps the HTTP server, its router and the message handlers.
type Channel struct {
	cfg        Config
	httpServer *http.Server
	handler    http.Handler
	handlers   *handler.Registry
	log        *zap.Logger

	originsMu sync.RWMutex
	origins   map[string]struct{}

	url       string
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New creates a Channel with all routes wired. It does not listen.
func New(cfg Config, deps Deps) *Channel {
	log := logger.OrNop(deps.Logger).With(logger.Component("channel"))
	c := &Channel{
		cfg:      cfg,
		handlers: handler.NewRegistry(),
		log:      log,
		origins:  make(map[string]struct{}),
	}
	c.AllowAuthDomain(cfg.AuthDomain)

	r := chi.NewRouter()
	r.Use(loggingMiddleware(log))
	r.Use(c.cors().Handler)

	r.Get(HealthPath, handler.Health())
	r.Post(MessagePath, handler.Message(c.handlers, log))
	r.Method(http.MethodGet, MetricsPath, deps.Metrics.Handler())

	c.handler = r
	c.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return c
}

// Open starts a channel and waits until it answers its health check. On any
// failure the listener is released and the error wraps domain.ErrChannelInit.
func Open(ctx context.Context, cfg Config, deps Deps) (*Channel, error) {
	c := New(cfg, deps)
	if err := c.start(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelInit, err)
	}
	if err := c.waitReady(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c.Close(shutdownCtx)
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelInit, err)
	}
	c.log.Info("channel ready", zap.String("url", c.url))
	return c, nil
}

// Handler returns the channel's HTTP handler (for testing).
func (c *Channel) Handler() http.Handler {
	return c.handler
}

// Register adds the handler for one message type.
func (c *Channel) Register(eventType string, h handler.MessageHandler) error {
	return c.handlers.Register(eventType, h)
}

// AllowAuthDomain lets browsers on https://<authDomain> post to the channel.
// Empty domains are ignored.
func (c *Channel) AllowAuthDomain(authDomain string) {
	if authDomain == "" {
		return
	}
	origin := "https://" + authDomain
	c.originsMu.Lock()
	defer c.originsMu.Unlock()
	if _, ok := c.origins[origin]; ok {
		return
	}
	c.origins[origin] = struct{}{}
	c.log.Debug("widget origin allowed", zap.String("origin", origin))
}

func (c *Channel) originAllowed(origin string) bool {
	c.originsMu.RLock()
	defer c.originsMu.RUnlock()
	_, ok := c.origins[origin]
	return ok
}

// URL is the base URL of a started channel.
func (c *Channel) URL() string {
	return c.url
}

// Close shuts the server down and waits for the serve loop to exit.
func (c *Channel) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.httpServer.Shutdown(ctx)
		if c.done != nil {
			select {
			case <-c.done:
			case <-ctx.Done():
				if c.closeErr == nil {
					c.closeErr = ctx.Err()
				}
			}
		}
		c.log.Info("channel closed")
	})
	return c.closeErr
}

func (c *Channel) start() error {
	ln, err := net.Listen("tcp", c.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", c.httpServer.Addr, err)
	}
	c.url = "http://" + ln.Addr().String()
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		if err := c.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("channel serve failed", zap.Error(err))
		}
	}()
	return nil
}

// waitReady polls the health route until it answers 200.
func (c *Channel) waitReady(ctx context.Context) error {
	timeout := c.cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	transport := &http.Transport{DisableKeepAlives: true}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if err := ping(ctx, client, c.url+HealthPath); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("channel did not become ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func ping(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

// cors allows browser posts from the allowed widget origins only.
func (c *Channel) cors() *cors.Cors {
	return cors.New(cors.Options{
		AllowOriginFunc: c.originAllowed,
		AllowedMethods:  []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:  []string{"Content-Type"},
	})
}

func loggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
