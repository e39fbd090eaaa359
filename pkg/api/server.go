package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/feedsim/feedsim/pkg/archive"
	"github.com/feedsim/feedsim/pkg/feed"
	"github.com/feedsim/feedsim/pkg/market"
	"github.com/feedsim/feedsim/pkg/orders"
)

// Server exposes the REST API and the websocket feed.
type Server struct {
	catalog *market.Catalog
	engine  *feed.Engine
	orders  *orders.Service
	archive *archive.Store // nil when archiving is disabled
	hub     *Hub
	log     *zap.SugaredLogger

	router     *mux.Router
	corsOrigin string
	httpServer *http.Server
}

func NewServer(catalog *market.Catalog, engine *feed.Engine, orderSvc *orders.Service, arch *archive.Store, hub *Hub, corsOrigin string, log *zap.SugaredLogger) *Server {
	s := &Server{
		catalog:    catalog,
		engine:     engine,
		orders:     orderSvc,
		archive:    arch,
		hub:        hub,
		log:        log,
		router:     mux.NewRouter(),
		corsOrigin: corsOrigin,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/symbols", s.handleGetSymbols).Methods("GET")

	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{symbol}", s.handleGetOrdersBySymbol).Methods("GET")

	api.HandleFunc("/ticks/{symbol}/latest", s.handleLatestTick).Methods("GET")
	api.HandleFunc("/ticks/{symbol}/history", s.handleTickHistory).Methods("GET")
	api.HandleFunc("/ticks/{symbol}/archive", s.handleTickArchive).Methods("GET")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/ws/ticks", s.handleWebSocket)
	s.router.HandleFunc("/", s.handleRoot).Methods("GET")
}

// Handler returns the CORS-wrapped root handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.corsOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves HTTP until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	s.log.Infow("api_server_started", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and closes live websocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleGetSymbols(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.All())
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.Side = market.Side(strings.ToUpper(string(req.Side)))
	if !req.Side.Valid() {
		respondError(w, http.StatusBadRequest, "side must be BUY or SELL", "")
		return
	}

	order, err := s.orders.Create(req)
	if err != nil {
		var rejected *market.RejectedError
		if errors.As(err, &rejected) {
			respondError(w, http.StatusBadRequest, rejected.Error(), "")
			return
		}
		s.log.Errorw("order_create_failed", "symbol", req.Symbol, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to save order", "")
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol query parameter is required", "")
		return
	}
	s.writeOrders(w, symbol)
}

func (s *Server) handleGetOrdersBySymbol(w http.ResponseWriter, r *http.Request) {
	s.writeOrders(w, mux.Vars(r)["symbol"])
}

func (s *Server) writeOrders(w http.ResponseWriter, symbol string) {
	list, err := s.orders.BySymbol(symbol)
	if err != nil {
		if errors.Is(err, market.ErrSymbolNotFound) {
			respondError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		s.log.Errorw("orders_read_failed", "symbol", symbol, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to read orders", "")
		return
	}
	if list == nil {
		list = []market.Order{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleLatestTick(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	// No tick yet is a normal state, reported as JSON null rather than 404.
	tick, ok := s.engine.LatestTick(symbol)
	if !ok {
		respondJSON(w, http.StatusOK, nil)
		return
	}
	respondJSON(w, http.StatusOK, tick)
}

func (s *Server) handleTickHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	limit, ok := parseLimit(r, 100)
	if !ok || limit < 1 || limit > 1000 {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000", "")
		return
	}

	ticks := s.engine.History(symbol, limit)
	if ticks == nil {
		ticks = []market.Tick{}
	}
	respondJSON(w, http.StatusOK, ticks)
}

func (s *Server) handleTickArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondError(w, http.StatusNotFound, "tick archive disabled", "")
		return
	}
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	limit, ok := parseLimit(r, 100)
	if !ok || limit < 1 || limit > 1000 {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000", "")
		return
	}

	ticks, err := s.archive.Recent(symbol, limit)
	if err != nil {
		s.log.Errorw("archive_read_failed", "symbol", symbol, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to read tick archive", "")
		return
	}
	respondJSON(w, http.StatusOK, ticks)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, serviceInfo{
		Name:    "feedsim",
		Version: "1.0.0",
		Status:  "running",
		Endpoints: map[string]string{
			"symbols":   "/api/symbols",
			"orders":    "/api/orders",
			"ticks":     "/api/ticks/{symbol}/latest",
			"health":    "/api/health",
			"websocket": "/ws/ticks",
		},
	})
}

func parseLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return limit, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errMsg, Message: detail})
}
