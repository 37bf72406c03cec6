package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchcore/params"
	"github.com/uhyunpark/matchcore/pkg/aggregate"
	"github.com/uhyunpark/matchcore/pkg/bus"
	"github.com/uhyunpark/matchcore/pkg/cqrs"
	"github.com/uhyunpark/matchcore/pkg/projection"
)

// Deps are the collaborators the API translates requests into.
type Deps struct {
	Bus        *bus.Router
	Registry   *aggregate.Registry
	Projection *projection.Projection
	Gatherer   prometheus.Gatherer // nil disables /metrics
	Logger     *zap.SugaredLogger
}

// Server handles REST API and WebSocket connections
type Server struct {
	bus      *bus.Router
	registry *aggregate.Registry
	proj     *projection.Projection

	cfg      params.API
	log      *zap.SugaredLogger
	validate *validator.Validate

	router *mux.Router
	hub    *Hub
	http   *http.Server
}

func NewServer(cfg params.API, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		bus:      deps.Bus,
		registry: deps.Registry,
		proj:     deps.Projection,
		cfg:      cfg,
		log:      log,
		validate: validator.New(),
		router:   mux.NewRouter(),
		hub:      NewHub(log),
	}
	s.setupRoutes(deps.Gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Orders
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}/cancel", s.handleCancelOrder).Methods("POST")

	// Instruments
	api.HandleFunc("/instruments", s.handleListInstruments).Methods("GET")
	api.HandleFunc("/instruments/{instrument}/depth", s.handleGetDepth).Methods("GET")
	api.HandleFunc("/instruments/{instrument}/events", s.handleEvents)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the routes wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Infow("api_listening", "addr", addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and closes every event stream.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondValidation(w, err)
		return
	}
	side, err := cqrs.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ResultTimeout)
	defer cancel()

	ev, err := s.bus.Send(ctx, cqrs.MakeOrder{
		InstrumentID: req.Instrument,
		ID:           uuid.New(),
		Side:         side,
		Quantity:     req.Quantity,
		Price:        req.Price,
	})
	if err != nil {
		s.respondCommandError(w, err)
		return
	}
	accepted, ok := ev.(cqrs.OrderAccepted)
	if !ok {
		respondError(w, http.StatusInternalServerError, "unexpected result", string(ev.Type()))
		return
	}

	entry, ok := s.awaitProjection(ctx, accepted.OrderID)
	if !ok {
		respondJSONStatus(w, http.StatusAccepted, SubmitOrderResponse{
			Status:  "accepted",
			OrderID: accepted.OrderID,
			Event:   accepted,
		})
		return
	}
	respondJSONStatus(w, http.StatusCreated, newOrderStatus(entry))
}

// awaitProjection polls the read-model with doubling backoff until the
// order shows up or the retries are spent.
func (s *Server) awaitProjection(ctx context.Context, orderID uint64) (projection.OrderEntry, bool) {
	backoff := s.cfg.ProjectionBackoff
	for attempt := 0; ; attempt++ {
		if e, ok := s.proj.Get(orderID); ok {
			return e, true
		}
		if attempt >= s.cfg.ProjectionRetries {
			s.log.Debugw("projection_lagging", "order_id", orderID, "attempts", attempt+1)
			return projection.OrderEntry{}, false
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return projection.OrderEntry{}, false
		}
		backoff *= 2
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}
	entry, found := s.proj.Get(id)
	if !found {
		respondError(w, http.StatusNotFound, "order not found", strconv.FormatUint(id, 10))
		return
	}
	respondJSON(w, newOrderStatus(entry))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	entry, found := s.proj.Get(id)
	if !found {
		respondError(w, http.StatusNotFound, "order not found", strconv.FormatUint(id, 10))
		return
	}
	if !entry.PendingQuantity.IsPositive() {
		respondError(w, http.StatusBadRequest, "order already executed", strconv.FormatUint(id, 10))
		return
	}

	cmd := cqrs.CancelOrder{
		InstrumentID: entry.Instrument,
		ID:           uuid.New(),
		OrderID:      id,
		CancelAll:    req.Quantity == nil,
	}
	if req.Quantity != nil {
		cmd.NewQuantity = *req.Quantity
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ResultTimeout)
	defer cancel()

	ev, err := s.bus.Send(ctx, cmd)
	if err != nil {
		s.respondCommandError(w, err)
		return
	}
	requested, ok := ev.(cqrs.CancellationRequested)
	if !ok {
		respondError(w, http.StatusInternalServerError, "unexpected result", string(ev.Type()))
		return
	}
	respondJSONStatus(w, http.StatusAccepted, CancelOrderResponse{Status: "accepted", Event: requested})
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, InstrumentList{Instruments: s.registry.Instruments()})
}

func (s *Server) handleGetDepth(w http.ResponseWriter, r *http.Request) {
	instrument := mux.Vars(r)["instrument"]
	if _, ok := s.registry.Get(instrument); !ok {
		respondError(w, http.StatusNotFound, "instrument not found", instrument)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("levels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid levels", v)
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ResultTimeout)
	defer cancel()

	snap := DepthSnapshot{Instrument: instrument, Bids: []PriceLevel{}, Asks: []PriceLevel{}}
	err := s.bus.Query(ctx, instrument, func(b *aggregate.Book) error {
		bids, asks := b.Engine().Depth()
		snap.Bids = convertLevels(bids, limit)
		snap.Asks = convertLevels(asks, limit)
		return nil
	})
	if err != nil {
		s.respondCommandError(w, err)
		return
	}
	snap.Timestamp = time.Now().UnixMilli()
	respondJSON(w, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, HealthResponse{
		Status:      "ok",
		Instruments: s.registry.Count(),
		Lanes:       s.bus.Lanes(),
		Streams:     s.hub.Count(),
	})
}

// ==============================
// Helper Functions
// ==============================

func orderIDFromPath(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", raw)
		return 0, false
	}
	return id, true
}

func (s *Server) respondCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, aggregate.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation failed", err.Error())
	case errors.Is(err, bus.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, "shutting down", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timed out waiting for result", err.Error())
	default:
		s.log.Errorw("command_error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSONStatus(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func respondValidation(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = "failed on tag '" + e.Tag() + "'"
	}
	respondJSONStatus(w, http.StatusBadRequest, ErrorResponse{
		Error:   "invalid request",
		Message: verrs.Error(),
		Fields:  fields,
	})
}
