package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"beanstalk/core"
	"beanstalk/native/field"
	"beanstalk/native/market"
	"beanstalk/native/season"
	"beanstalk/native/silo"
	"beanstalk/native/sun"
	"beanstalk/native/well"
	"beanstalk/observability"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNotFound    = errors.New("not found")
)

// Reader is the read side of the protocol served by the API.
type Reader interface {
	Block() season.Block
	Root() common.Hash
	Season() (*season.Season, error)
	Weather() (*season.Weather, error)
	Soil() (*uint256.Int, error)
	Temperature() (uint64, error)
	Fields() ([]core.FieldInfo, error)
	Plots(account common.Address, fieldID uint64) ([]field.Plot, error)
	Listing(fieldID uint64, index *uint256.Int) (*market.Listing, error)
	Deposits(account, token common.Address) ([]silo.DepositView, error)
	GrownStalk(account, token common.Address) (*uint256.Int, error)
	Pools() ([]common.Address, error)
	Pool(addr common.Address) (*well.Pool, error)
	DeltaB() (current, twa *big.Int)
	Evaluate() (*sun.Evaluation, error)
	Routes() []sun.Route
	BalanceOf(token, account common.Address) (*uint256.Int, error)
}

// Timeouts bound the HTTP server's connection phases. Zero disables one.
type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
}

type Config struct {
	Reader      Reader
	Events      *EventLog
	RateLimiter *RateLimiter
	Logger      *slog.Logger
	Addr        string
	Timeouts    Timeouts
}

// Server is the JSON read API plus the Prometheus scrape endpoint.
type Server struct {
	reader  Reader
	events  *EventLog
	limiter *RateLimiter
	logger  *slog.Logger
	handler http.Handler
	srv     *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("rpc: reader must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := cfg.Events
	if events == nil {
		events = NewEventLog(0)
	}
	s := &Server{
		reader:  cfg.Reader,
		events:  events,
		limiter: cfg.RateLimiter,
		logger:  logger.With("component", "rpc"),
	}
	s.handler = otelhttp.NewHandler(s.routes(), "beanstalk-api")
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: cfg.Timeouts.ReadHeader,
		ReadTimeout:       cfg.Timeouts.Read,
		WriteTimeout:      cfg.Timeouts.Write,
		IdleTimeout:       cfg.Timeouts.Idle,
	}
	return s, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.limiter.Middleware)
		v1.Get("/head", s.handleHead)
		v1.Get("/season", s.handleSeason)
		v1.Get("/weather", s.handleWeather)
		v1.Get("/fields", s.handleFields)
		v1.Get("/fields/{fieldID}/plots/{account}", s.handlePlots)
		v1.Get("/fields/{fieldID}/listings/{index}", s.handleListing)
		v1.Get("/silo/{account}/deposits/{token}", s.handleDeposits)
		v1.Get("/pools", s.handlePools)
		v1.Get("/pools/{address}", s.handlePool)
		v1.Get("/deltab", s.handleDeltaB)
		v1.Get("/evaluation", s.handleEvaluation)
		v1.Get("/routes", s.handleRoutes)
		v1.Get("/balances/{account}/{token}", s.handleBalance)
		v1.Get("/events", s.handleEvents)
		v1.Get("/events/ws", s.handleEventsWS)
	})
	return r
}

// observe records the request outcome under its route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.APIMetrics().Observe(route, status, time.Since(start))
	})
}

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestID tags every request with the caller's X-Request-ID or a fresh
// uuid, echoed back on the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Start serves on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("rpc server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		message = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// fail maps a protocol error to a status and logs unexpected ones.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errNotFound),
		errors.Is(err, field.ErrUnknownField),
		errors.Is(err, well.ErrUnknownPool),
		errors.Is(err, market.ErrListingNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		s.logger.Error("query failed", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}
