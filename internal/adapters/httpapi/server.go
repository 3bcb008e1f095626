package httpapi

// server.go — operator HTTP API over the arena and the trading engine.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/alejandrodnm/arena/internal/application/arena"
	"github.com/alejandrodnm/arena/internal/application/engine"
	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

// Server is a lightweight HTTP API for arena operation.
type Server struct {
	httpServer *http.Server
	manager    *arena.Manager
	engine     *engine.Engine
	trades     ports.TradeStore
	events     ports.EventStore
	startedAt  time.Time
}

// NewServer creates the API server bound to addr.
func NewServer(addr string, manager *arena.Manager, eng *engine.Engine, trades ports.TradeStore, events ports.EventStore) *Server {
	s := &Server{
		manager:   manager,
		engine:    eng,
		trades:    trades,
		events:    events,
		startedAt: time.Now().UTC(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/arena/stats", s.handleStats)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("POST /api/agents", s.handleSpawn)
	mux.HandleFunc("POST /api/arena/evolve", s.handleEvolve)
	mux.HandleFunc("POST /api/trades", s.handleSubmitTrade)
	mux.HandleFunc("GET /api/trades", s.handleRecentTrades)
	mux.HandleFunc("GET /api/trades/{id}", s.handleGetTrade)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("POST /api/emergency-stop", s.handleEmergencyStop)
	mux.HandleFunc("POST /api/resume", s.handleResume)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("api server listening", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"error": msg})
}

// GET /api/status — engine status and uptime.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"trading_enabled": st.TradingEnabled,
		"pending_trades":  st.PendingTrades,
		"protocols":       st.Protocols,
		"uptime_s":        time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/arena/stats — pool partition, head counts and leaderboard.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.manager.Stats()

	top := make([]map[string]any, 0, len(stats.TopPerformers))
	for _, agent := range stats.TopPerformers {
		top = append(top, agentJSON(agent))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_capital":     stats.Pool.TotalCapital,
		"stable_reserve":    stats.Pool.StableReserve,
		"arena_capital":     stats.Pool.ArenaCapital,
		"proving_capital":   stats.Pool.ProvingCapital,
		"allocated":         stats.Allocated,
		"agents_active":     stats.AgentsActive,
		"agents_proving":    stats.AgentsProving,
		"agents_simulating": stats.AgentsSimulating,
		"agents_retired":    stats.AgentsRetired,
		"arena_return":      stats.ArenaReturn,
		"top_performers":    top,
	})
}

// GET /api/agents — full roster, ranked.
func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	agents := s.manager.Agents()
	out := make([]map[string]any, 0, len(agents))
	for _, agent := range agents {
		out = append(out, agentJSON(agent))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// POST /api/agents — spawn a new simulation agent.
func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string             `json:"strategy"`
		Params   map[string]float64 `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	agent, err := s.manager.SpawnAgent(r.Context(), req.Strategy, req.Params)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, agentJSON(agent))
}

// POST /api/arena/evolve — run one evolution cycle.
func (s *Server) handleEvolve(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.RunEvolutionCycle(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"killed":     report.Killed,
		"spawned":    report.Spawned,
		"graduated":  report.Graduated,
		"mutated":    report.Mutated,
		"active":     report.Active,
		"proving":    report.Proving,
		"simulating": report.Simulating,
	})
}

// POST /api/trades — submit a trade for an agent.
func (s *Server) handleSubmitTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID        string  `json:"agent_id"`
		Type           string  `json:"type"`
		Protocol       string  `json:"protocol"`
		InputAsset     string  `json:"input_asset"`
		InputAmount    float64 `json:"input_amount"`
		OutputAsset    string  `json:"output_asset"`
		ExpectedReturn float64 `json:"expected_return"`
		GasCostUSD     float64 `json:"gas_cost_usd"`
		MinOutput      float64 `json:"min_output"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	intent := domain.TradeIntent{
		Type:           domain.TradeType(req.Type),
		Protocol:       req.Protocol,
		InputAsset:     req.InputAsset,
		InputAmount:    req.InputAmount,
		OutputAsset:    req.OutputAsset,
		ExpectedReturn: req.ExpectedReturn,
		GasCostUSD:     req.GasCostUSD,
		MinOutput:      req.MinOutput,
	}

	tradeID, err := s.engine.Submit(r.Context(), req.AgentID, intent)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.Is(err, domain.ErrTradingDisabled):
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.As(err, &verr):
			s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": verr.Reason,
				"code":  string(verr.Code),
			})
		default:
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{"trade_id": tradeID})
}

// GET /api/trades — most recent trades, newest first.
func (s *Server) handleRecentTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	trades, err := s.trades.RecentTrades(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// GET /api/trades/{id} — one trade by ID.
func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := s.trades.GetTrade(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

// GET /api/events — audit trail slice, oldest first. Filters: type, agent,
// limit.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := ports.EventFilter{
		AgentID: r.URL.Query().Get("agent"),
		Limit:   queryInt(r, "limit", 100),
	}
	if t := r.URL.Query().Get("type"); t != "" {
		filter.Types = []domain.EventType{domain.EventType(t)}
	}

	events, err := s.events.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// POST /api/emergency-stop — halt all trade submission.
func (s *Server) handleEmergencyStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.EmergencyStop()
	s.writeJSON(w, http.StatusOK, map[string]any{"trading_enabled": false})
}

// POST /api/resume — lift the emergency stop.
func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.engine.EmergencyResume()
	s.writeJSON(w, http.StatusOK, map[string]any{"trading_enabled": true})
}

func agentJSON(agent domain.Agent) map[string]any {
	return map[string]any{
		"id":              agent.ID,
		"name":            agent.DisplayName,
		"strategy":        agent.StrategyTag,
		"status":          string(agent.Status),
		"tier":            string(agent.Tier),
		"capital":         agent.Capital,
		"initial_capital": agent.InitialCapital,
		"fitness":         agent.FitnessScore,
		"rank":            agent.Rank,
		"age":             agent.Age,
		"total_return":    agent.TotalReturn(),
		"win_rate":        agent.WinRate(),
		"max_drawdown":    agent.MaxDrawdown(),
		"sharpe":          agent.SharpeRatio(),
		"created_at":      agent.CreatedAt,
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
