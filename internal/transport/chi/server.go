package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geodex/internal/domain"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
	"github.com/kailas-cloud/geodex/internal/logger"
	"github.com/kailas-cloud/geodex/internal/metrics"
	autocompleteuc "github.com/kailas-cloud/geodex/internal/usecase/autocomplete"
	healthuc "github.com/kailas-cloud/geodex/internal/usecase/health"
	lookupuc "github.com/kailas-cloud/geodex/internal/usecase/lookup"
)

// maxBodyBytes bounds POST /autocomplete bodies.
const maxBodyBytes = 16 << 10

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the geocoding HTTP API.
type Server struct {
	autocomplete  *autocompleteuc.Service
	lookup        *lookupuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	autocomplete *autocompleteuc.Service,
	lookup *lookupuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		autocomplete: autocomplete,
		lookup:       lookup,
		health:       health,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, ErrorCodeInvalidRequest),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, ErrorCodeTimeout),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, ErrorCodeIndexUnavailable),
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/", s.EntryPoint(r))
	r.Get("/autocomplete", s.AutocompleteGet)
	r.Post("/autocomplete", s.AutocompletePost)
	r.Get("/reverse", s.Reverse)
	r.Get("/features/{id}", s.Feature)
	r.Get("/status", s.Status)
	r.Get("/metrics", s.Metrics)
}

// autocompleteParams are the GET /autocomplete query parameters.
type autocompleteParams struct {
	Q      string
	Limit  *int
	Offset *int
	Lat    *float64
	Lon    *float64
	Type   *[]string
	Lang   *string
	BBox   *string
}

// AutocompleteGet handles GET /autocomplete.
func (s *Server) AutocompleteGet(w http.ResponseWriter, r *http.Request) {
	var p autocompleteParams
	q := r.URL.Query()
	binds := []struct {
		name     string
		required bool
		dest     any
	}{
		{"q", true, &p.Q},
		{"limit", false, &p.Limit},
		{"offset", false, &p.Offset},
		{"lat", false, &p.Lat},
		{"lon", false, &p.Lon},
		{"type", false, &p.Type},
		{"lang", false, &p.Lang},
		{"bbox", false, &p.BBox},
	}
	for _, b := range binds {
		if err := runtime.BindQueryParameter("form", true, b.required, b.name, q, b.dest); err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest,
				fmt.Sprintf("invalid parameter %s: %v", b.name, err))
			return
		}
	}

	body := AutocompleteRequest{Q: p.Q, Limit: p.Limit, Offset: p.Offset, Lat: p.Lat, Lon: p.Lon}
	if p.Type != nil {
		body.Type = *p.Type
	}
	if p.Lang != nil {
		body.Lang = *p.Lang
	}
	if p.BBox != nil {
		body.BBox = *p.BBox
	}
	s.runAutocomplete(w, r, body)
}

// AutocompletePost handles POST /autocomplete.
func (s *Server) AutocompletePost(w http.ResponseWriter, r *http.Request) {
	var body AutocompleteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	s.runAutocomplete(w, r, body)
}

func (s *Server) runAutocomplete(w http.ResponseWriter, r *http.Request, body AutocompleteRequest) {
	opts, err := optionsFromRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
		return
	}

	page, err := s.autocomplete.Autocomplete(r.Context(), body.Q, opts)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	metrics.ObserveResults("autocomplete", len(page.Results))
	writeJSON(w, http.StatusOK, pageToResponse(page))
}

// Reverse handles GET /reverse.
func (s *Server) Reverse(w http.ResponseWriter, r *http.Request) {
	var (
		lat, lon float64
		lang     *string
	)
	q := r.URL.Query()
	for name, dest := range map[string]any{"lat": &lat, "lon": &lon} {
		if err := runtime.BindQueryParameter("form", true, true, name, q, dest); err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest,
				fmt.Sprintf("invalid parameter %s: %v", name, err))
			return
		}
	}
	if err := runtime.BindQueryParameter("form", true, false, "lang", q, &lang); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid parameter lang: "+err.Error())
		return
	}

	page, err := s.lookup.Reverse(r.Context(), geo.Point{Lat: lat, Lon: lon}, deref(lang))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	metrics.ObserveResults("reverse", len(page.Results))
	writeJSON(w, http.StatusOK, pageToResponse(page))
}

// Feature handles GET /features/{id}.
func (s *Server) Feature(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.lookup.Feature(r.Context(), id, r.URL.Query().Get("lang"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, featureFromResult(res))
}

// EntryPoint handles GET /, listing the routes mounted on r.
func (s *Server) EntryPoint(r chi.Routes) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var routes []string
		err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			if route != "/" {
				routes = append(routes, method+" "+route)
			}
			return nil
		})
		if err != nil {
			s.logger.Error("walk routes", zap.Error(err))
			writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
			return
		}
		slices.Sort(routes)
		writeJSON(w, http.StatusOK, RoutesResponse{Name: "geodex", Routes: routes})
	}
}

// Status handles GET /status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, StatusResponse{
		Status:  report.Status,
		Version: report.Version,
		Checks:  report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// optionsFromRequest converts transport parameters into request options.
// Range checks on limit, offset and coordinates belong to the request builder.
func optionsFromRequest(body AutocompleteRequest) (request.Options, error) {
	opts := request.Options{
		Limit:  deref(body.Limit),
		Offset: deref(body.Offset),
		Lang:   body.Lang,
	}

	switch {
	case body.Lat != nil && body.Lon != nil:
		opts.Center = &geo.Point{Lat: *body.Lat, Lon: *body.Lon}
	case body.Lat != nil || body.Lon != nil:
		return request.Options{}, errors.New("lat and lon must be given together")
	}

	if body.BBox != "" {
		bb, err := geo.ParseBBox(body.BBox)
		if err != nil {
			return request.Options{}, fmt.Errorf("bbox: %w", err)
		}
		opts.BBox = &bb
	}
	if len(body.Shape) > 0 && string(body.Shape) != "null" {
		shape, err := shapeFromJSON(body.Shape)
		if err != nil {
			return request.Options{}, err
		}
		opts.Shape = shape
	}

	for _, raw := range body.Type {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t == "" {
				continue
			}
			typ, err := place.ParseType(t)
			if err != nil {
				return request.Options{}, err
			}
			opts.Types = append(opts.Types, typ)
		}
	}
	return opts, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message without exposing internals.
// Invalid requests echo the validation detail, other sentinels their own text.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrTimeout,
		domain.ErrIndexUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
