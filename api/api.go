package api

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/ironcert/certificate"
	"github.com/jmcleod/ironcert/storage"
)

// BasePath is where the router returned by Router is expected to be mounted.
const BasePath = "/api/v1"

// API holds the dependencies needed by the REST handlers.
type API struct {
	templates storage.TemplateStore
	issuer    *certificate.Issuer
	validator *certificate.Validator
	loader    *certificate.Loader
	exporter  *certificate.Exporter

	logger         *slog.Logger
	certOpts       []certificate.Option
	renderer       certificate.Renderer
	audit          *auditLogger
	alertFn        AlertFunc
	verifyLimiter  *verifyRateLimiter
	verifyRPS      float64
	verifyBurst    int
	trustedProxies []netip.Prefix
	publicBaseURL  string
	now            func() time.Time
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events and the
// certificate services. If not set, a default JSON logger writing to stderr
// is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithAlertFunc registers a callback for anomaly alerts (validation failure
// spikes, bulk downloads).
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithCertificateOptions passes options through to the issuer, validator
// and loader (clock, cache, notifier, CSS inliner, issue defaults).
func WithCertificateOptions(opts ...certificate.Option) Option {
	return func(a *API) {
		a.certOpts = append(a.certOpts, opts...)
	}
}

// WithRenderer sets the PDF renderer used by the download route. Without a
// renderer downloads answer 503.
func WithRenderer(r certificate.Renderer) Option {
	return func(a *API) {
		a.renderer = r
	}
}

// WithVerifyRateLimit limits the public verification routes to rps requests
// per second per client IP with the given burst. A non-positive rps disables
// the limiter.
func WithVerifyRateLimit(rps float64, burst int) Option {
	return func(a *API) {
		a.verifyRPS = rps
		a.verifyBurst = burst
	}
}

// WithPublicBaseURL sets the scheme and host prefixed to view and download
// URLs in responses, e.g. "https://certs.example.com".
func WithPublicBaseURL(u string) Option {
	return func(a *API) {
		a.publicBaseURL = strings.TrimRight(u, "/")
	}
}

// WithClock overrides the time source for the API and the certificate
// services it builds.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		a.now = now
		a.certOpts = append(a.certOpts, certificate.WithClock(now))
	}
}

// WithTrustedProxies configures the CIDR ranges whose proxy headers
// (X-Forwarded-For, Forwarded, X-Real-IP) are honored when determining
// the client IP for rate limiting and audit logs. Bare IPs are treated as
// single-host prefixes.
func WithTrustedProxies(cidrs []string) (Option, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return func(a *API) {
		a.trustedProxies = prefixes
	}, nil
}

// New creates a new API instance.
func New(certs storage.CertificateRepository, templates storage.TemplateStore, opts ...Option) *API {
	a := &API{
		templates:   templates,
		verifyRPS:   defaultVerifyRPS,
		verifyBurst: defaultVerifyBurst,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit = newAuditLogger(a.logger)
	a.audit.metrics = newMetricsCollector(a.alertFn)
	if a.verifyRPS > 0 {
		a.verifyLimiter = newVerifyRateLimiter(a.verifyRPS, a.verifyBurst)
	}

	certOpts := append([]certificate.Option{certificate.WithLogger(a.logger)}, a.certOpts...)
	a.issuer = certificate.NewIssuer(certs, templates, certOpts...)
	a.validator = certificate.NewValidator(certs, certOpts...)
	a.loader = certificate.NewLoader(certs, certOpts...)
	a.exporter = certificate.NewExporter(a.validator, templates, a.renderer)
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestMetrics)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: BasePath + "/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))
	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: BasePath + "/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/templates", a.CreateTemplate)
	r.Get("/templates/{templateID}", a.GetTemplate)

	r.Post("/certificates", a.IssueCertificate)
	r.Get("/certificates", a.ListCertificates)
	r.Get("/certificates/{certificateID}", a.GetCertificate)
	r.Put("/certificates/{certificateID}/state", a.SetCertificateState)

	// Public verification routes are rate limited per client IP.
	r.Route("/verify/{uniqueID}", func(r chi.Router) {
		r.Use(a.verifyRateLimit)
		r.Get("/", a.VerifyCertificate)
		r.With(requireUser).Get("/download", a.DownloadCertificate)
	})

	return r
}
