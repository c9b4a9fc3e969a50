package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"auction-sync/internal/config"
	"auction-sync/internal/infrastructure/auth"
	"auction-sync/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
)

// Server simulates the remote auction backend: REST API plus push channel.
type Server struct {
	Manager   *AuctionManager
	Hub       *Hub
	Signer    *auth.Signer
	scheduler *CronSweepScheduler
	router    *mux.Router
	http      *http.Server
	log       logger.Logger
}

func NewServer(cfg config.DevServerConfig, socketPath string, clock clockwork.Clock, log logger.Logger) *Server {
	hub := NewHub(log)
	notifier := NewWebSocketNotifier(hub)
	manager := NewAuctionManager(Rules{
		ExtensionWindow:  cfg.ExtensionWindow,
		EndingSoonWindow: cfg.EndingSoonWindow,
	}, clock, notifier, log)
	signer := auth.NewSigner(cfg.JWTSecret, 24*time.Hour)

	s := &Server{
		Manager:   manager,
		Hub:       hub,
		Signer:    signer,
		scheduler: NewCronSweepScheduler(cfg.Sweep, manager, log),
		log:       log,
	}

	if socketPath == "" {
		socketPath = "/auctions"
	}
	auctionHandler := NewAuctionHandler(manager, signer, log)
	wsHandler := NewWebSocketHandler(manager, hub, notifier, signer, log)

	r := mux.NewRouter()
	r.HandleFunc(socketPath, wsHandler.HandleConnection)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auctions", auctionHandler.ListAuctions).Methods(http.MethodGet)
	api.HandleFunc("/auctions", auctionHandler.CreateAuction).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}", auctionHandler.GetAuction).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}/bid", auctionHandler.PlaceBid).Methods(http.MethodPost)
	api.HandleFunc("/users/me", auctionHandler.GetProfile).Methods(http.MethodGet)
	api.HandleFunc("/auth/login", auctionHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", auctionHandler.Register).Methods(http.MethodPost)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "auction-devserver"})
	}).Methods(http.MethodGet)

	s.router = r
	s.http = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the sweep and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}
	s.log.Info("Starting dev server", "address", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.scheduler.Stop()
	s.Hub.CloseAll()
	return s.http.Shutdown(ctx)
}
