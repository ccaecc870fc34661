package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leverfarm/crypto"
	"leverfarm/native/common"
	"leverfarm/native/leverage"
	"leverfarm/observability/logging"
	"leverfarm/services/leverfarmd/config"
	"leverfarm/storage"
	"leverfarm/storage/ledgerstore"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/leverfarmd/config.yaml", "path to leverfarmd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LEVERFARM_ENV"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup("leverfarmd", env, "")
		panicExit("load config", err)
	}
	logger := logging.Setup("leverfarmd", env, cfg.LogLevel)

	moduleCfg := leverage.Config{}
	if cfg.ModuleConfig != "" {
		if _, err := toml.DecodeFile(cfg.ModuleConfig, &moduleCfg); err != nil {
			panicExit("load module config", err)
		}
	}
	moduleCfg.EnsureDefaults()
	if err := moduleCfg.Validate(); err != nil {
		panicExit("validate module config", err)
	}

	poolAddr, err := crypto.DecodeAddress(cfg.PoolAddress)
	if err != nil {
		panicExit("decode pool address", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panicExit("open database", err)
	}
	defer db.Close()

	store := ledgerstore.NewStore(db)
	oracle := leverage.NewOracleTable()

	registry, err := moduleCfg.Registry()
	if err != nil {
		panicExit("build policy registry", err)
	}

	engine := leverage.NewEngine(poolAddr)
	engine.SetState(store)
	engine.SetInterestCurve(moduleCfg.InterestCurve())
	engine.SetPolicy(registry)
	engine.SetReserveFactor(moduleCfg.ReserveFactorBps)
	if len(cfg.PausedModules) > 0 {
		engine.SetPauses(common.NewPauseSet(cfg.PausedModules...))
		logger.Warn("modules paused", "modules", strings.Join(cfg.PausedModules, ","))
	}

	for _, wc := range cfg.Workers {
		addr, err := crypto.DecodeAddress(wc.Address)
		if err != nil {
			panicExit("decode worker address", err)
		}
		switch wc.Strategy {
		case config.StrategyVault:
			engine.RegisterWorker(leverage.NewPooledVaultWorker(addr, poolAddr, oracle, wc.BaseSymbol, wc.AssetSymbol, wc.MaxPriceAge))
		case config.StrategyFarm:
			engine.RegisterWorker(leverage.NewFarmingWorker(addr, poolAddr, oracle, wc.BaseSymbol, wc.AssetSymbol, wc.MaxPriceAge))
		}
		logger.Info("registered worker", "address", wc.Address, "strategy", wc.Strategy)
	}

	api := &apiServer{engine: engine, oracle: oracle}
	router := chi.NewRouter()
	router.Get("/healthz", api.health)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Route("/v1", func(r chi.Router) {
		r.Get("/pool", api.pool)
		r.Get("/positions/{id}", api.position)
		r.Post("/oracle/prices", api.setPrice)
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("leverfarmd listening", "address", cfg.ListenAddress)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			panicExit("serve", err)
		}
	}
}

func panicExit(stage string, err error) {
	slog.Error(stage, "error", err)
	os.Exit(1)
}

type apiServer struct {
	engine *leverage.Engine
	oracle *leverage.OracleTable
}

func (s *apiServer) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type poolResponse struct {
	TotalDebtShare    string `json:"totalDebtShare"`
	TotalDebtValue    string `json:"totalDebtValue"`
	Reserve           string `json:"reserve"`
	TotalSupplyShares string `json:"totalSupplyShares"`
	LendableCash      string `json:"lendableCash"`
	LastAccrual       uint64 `json:"lastAccrual"`
}

func (s *apiServer) pool(w http.ResponseWriter, _ *http.Request) {
	pool, cash, err := s.engine.PoolSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, poolResponse{
		TotalDebtShare:    pool.TotalDebtShare.String(),
		TotalDebtValue:    pool.TotalDebtValue.String(),
		Reserve:           pool.Reserve.String(),
		TotalSupplyShares: pool.TotalSupplyShares.String(),
		LendableCash:      cash.String(),
		LastAccrual:       pool.LastAccrual,
	})
}

type positionResponse struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Worker    string `json:"worker"`
	DebtShare string `json:"debtShare"`
	DebtValue string `json:"debtValue"`
	Principal string `json:"principal"`
}

func (s *apiServer) position(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pos, err := s.engine.Position(id)
	if err != nil {
		if errors.Is(err, leverage.ErrPositionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	debt, err := s.engine.PositionDebt(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		ID:        pos.ID,
		Owner:     pos.Owner.String(),
		Worker:    pos.Worker.String(),
		DebtShare: pos.DebtShare.String(),
		DebtValue: debt.String(),
		Principal: pos.Principal.String(),
	})
}

type priceRequest struct {
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	Rate      string `json:"rate"`
	UpdatedAt uint64 `json:"updatedAt"`
}

func (s *apiServer) setPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rate, ok := new(big.Int).SetString(strings.TrimSpace(req.Rate), 10)
	if !ok || rate.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("rate must be a positive integer"))
		return
	}
	updatedAt := req.UpdatedAt
	if updatedAt == 0 {
		updatedAt = uint64(time.Now().Unix())
	}
	s.oracle.SetPrice(req.Base, req.Quote, rate, updatedAt)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
