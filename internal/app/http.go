package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cabinet/api/internal/auth"
	"cabinet/api/internal/ratelimit"
	"cabinet/api/internal/store"
	"cabinet/api/internal/telemetry"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/upload"
)

// maxBodyBytes leaves room for a base64 encoded 5 MB document.
const maxBodyBytes = 8 << 20

const msgUnknownProcedure = "Procédure inconnue."

type ServerOptions struct {
	CORSOrigins []string
	// Limits holds rate-limit counters. A MemoryStore is used when nil.
	Limits ratelimit.Store
	// Gatherer backs /metrics. The default registry is used when nil.
	Gatherer prometheus.Gatherer
}

type HTTPServer struct {
	service    *Service
	opts       ServerOptions
	procedures map[string]procedure
}

func NewHTTPServer(service *Service, opts ServerOptions) *HTTPServer {
	if opts.Limits == nil {
		opts.Limits = ratelimit.NewMemoryStore()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &HTTPServer{service: service, opts: opts, procedures: procedures(service)}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(300, time.Minute))
		r.Post("/api/rpc/{procedure}", s.handleRPC)
	})

	return otelhttp.NewHandler(r, telemetry.ServiceName)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "procedure")
	started := time.Now()
	ctx := r.Context()
	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("procedure", name)
	})

	code, label := "OK", name
	defer func() {
		s.service.metrics.ObserveRPC(label, code, time.Since(started))
	}()
	fail := func(err error) {
		domainErr := mapError(err)
		code = domainErr.Code
		if domainErr.Status >= http.StatusInternalServerError {
			log.Ctx(ctx).Error().Err(err).Str("procedure", name).Msg("procedure failed")
		}
		writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
	}

	proc, ok := s.procedures[name]
	if !ok {
		label = "unknown"
		fail(errNotFound(msgUnknownProcedure))
		return
	}

	principal, err := s.service.Resolve(ctx, bearerToken(r))
	switch {
	case err == nil:
	case !sessionRejected(err):
		fail(fmt.Errorf("resolve session: %w", err))
		return
	case !proc.public:
		fail(errUnauthorized(msgSessionInvalid))
		return
	default:
		principal = tenant.Principal{}
	}
	ctx = tenant.WithPrincipal(ctx, principal)

	if err := s.checkLimits(ctx, w, r, name, proc, principal); err != nil {
		fail(err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(errBadRequest(uploadMessages[upload.ErrTooLarge]))
			return
		}
		fail(errBadRequest(msgInvalidBody))
		return
	}

	result, err := proc.call(ctx, principal, body)
	if err != nil {
		fail(err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// sessionRejected tells a token the caller must replace from a lookup that
// failed on our side.
func sessionRejected(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrExpiredToken) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, tenant.ErrNoTenant)
}

// checkLimits applies the procedure's rate limits. A failing counter store
// lets the request through.
func (s *HTTPServer) checkLimits(ctx context.Context, w http.ResponseWriter, r *http.Request, name string, proc procedure, p tenant.Principal) error {
	for _, l := range proc.limits {
		subject := clientIP(r)
		if l.perUser && p.UserID != "" {
			subject = p.UserID
		}
		res, err := l.rule.Check(ctx, s.opts.Limits, subject)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("rule", l.rule.Name).Msg("rate limit check failed")
			continue
		}
		if !res.Allowed {
			s.service.metrics.RateLimited(l.rule.Name)
			retryAfter := int(time.Until(res.ResetAt).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			log.Ctx(ctx).Info().Str("rule", l.rule.Name).Str("procedure", name).Msg("rate limited")
			return errTooManyRequests(res.ResetAt)
		}
	}
	return nil
}

// requestLogger puts a request-scoped zerolog logger in the context and logs
// one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.Logger.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r)

		zerolog.Ctx(r.Context()).Info().
			Int("status", ww.Status()).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
