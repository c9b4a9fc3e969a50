package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-sync/internal/api/handlers"
	"auction-sync/internal/config"
	"auction-sync/internal/domain"
	"auction-sync/internal/infrastructure/auth"
	"auction-sync/internal/infrastructure/leader"
	"auction-sync/internal/infrastructure/mysql"
	"auction-sync/internal/infrastructure/redis"
	"auction-sync/internal/infrastructure/rest"
	"auction-sync/internal/infrastructure/websocket"
	"auction-sync/internal/metrics"
	"auction-sync/internal/services"
	"auction-sync/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// logObserver reports session output through the structured logger.
type logObserver struct {
	log logger.Logger
}

func (o logObserver) AuctionUpdated(a *domain.Auction) {
	o.log.Info("Auction updated",
		"status", a.Status,
		"current_price", a.CurrentPrice.StringFixed(2),
		"version", a.Version,
		"bids", len(a.Bids),
		"ends_at", a.EndsAt.Format(time.RFC3339))
}

func (o logObserver) CountdownTick(remaining string) {
	o.log.Debug("Countdown", "remaining", remaining)
}

func (o logObserver) Notify(n services.Notification) {
	o.log.Info(n.Message, "kind", n.Kind)
}

func (o logObserver) ConnectionChanged(state string, err error) {
	if err != nil {
		o.log.Warn("Push channel state changed", "state", state, "error", err)
		return
	}
	o.log.Info("Push channel state changed", "state", state)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting auction watcher", "config", cfg.GetConfigString())

	if cfg.Session.AuctionID == "" {
		log.Fatal("No auction to watch, set AUCTION_ID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncMetrics := metrics.New()
	syncMetrics.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	clock := clockwork.NewRealClock()

	var rdb *redisClient.Client
	if cfg.Redis.MirrorEnabled || cfg.Auth.TokenStore == "redis" {
		rdb, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		defer rdb.Close()
		log.Info("Connected to Redis", "address", cfg.Redis.Address)
	}

	var tokens domain.TokenStore
	switch cfg.Auth.TokenStore {
	case "redis":
		tokens = redis.NewRedisTokenStore(rdb)
		if cfg.Auth.Token != "" {
			if err := tokens.SetItem(ctx, domain.AuthTokenKey, cfg.Auth.Token); err != nil {
				log.Fatal("Failed to store auth token", "error", err)
			}
		}
	default:
		tokens = auth.NewStaticTokenStore(cfg.Auth.Token)
	}

	userID := cfg.Session.UserID
	if userID == "" {
		token, err := tokens.GetItem(ctx, domain.AuthTokenKey)
		if err != nil {
			log.Fatal("Failed to read auth token", "error", err)
		}
		if token != "" {
			if userID, err = auth.SubjectFromToken(token); err != nil {
				log.Warn("Auth token carries no user id, outbid notices disabled", "error", err)
			}
		}
	}

	client := rest.NewClient(cfg.API.BaseURL, tokens, log)
	client.SetTimeout(cfg.API.RequestTimeout)

	dispatcher := services.NewEventDispatcher(syncMetrics, log)
	connection := websocket.NewConnectionManager(websocket.Options{
		URL:               cfg.SocketURL(),
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    cfg.Socket.ReconnectDelay,
		HandshakeTimeout:  cfg.Socket.HandshakeTimeout,
		PingInterval:      cfg.Socket.PingInterval,
	}, websocket.NewGorillaDialer(cfg.Socket.HandshakeTimeout), tokens, dispatcher, clock, syncMetrics, log)

	observer := logObserver{log: log}
	unwatch := connection.OnStateChange(func(c websocket.StateChange) {
		observer.ConnectionChanged(c.To.String(), c.Err)
	})
	defer unwatch()

	session := services.NewSession(services.SessionOptions{
		AuctionID:       cfg.Session.AuctionID,
		UserID:          userID,
		Tick:            cfg.Session.Tick,
		RefreshInterval: cfg.Session.RefreshInterval,
	}, connection, dispatcher, client, clock, observer, syncMetrics, log)

	var lease *leader.RedisLease
	if cfg.Redis.MirrorEnabled {
		lease = leader.NewRedisLease(rdb, uuid.NewString(), cfg.Redis.LeaseTTL, log)
		mirror := redis.NewRedisStateMirror(rdb, cfg.Redis.Channel)
		session.SetMirror(leader.NewLeasedMirror(mirror, lease, log))
		log.Info("State mirroring enabled", "channel", cfg.Redis.Channel, "instance_id", lease.InstanceID())
	}

	var journal domain.SyncJournal
	if cfg.MySQL.JournalEnabled {
		db, err := mysql.Open(ctx, cfg.MySQL)
		if err != nil {
			log.Fatal("Failed to connect to MySQL", "error", err)
		}
		defer func(db *sql.DB) {
			if err := db.Close(); err != nil {
				log.Error("Failed to close MySQL connection", "error", err)
			}
		}(db)
		if err := mysql.Migrate(db, log); err != nil {
			log.Fatal("Failed to migrate sync journal", "error", err)
		}
		journal = mysql.NewMySQLJournalRepository(db)
		session.SetJournal(journal)
		log.Info("Sync journal enabled")
	}

	if err := session.Open(ctx); err != nil {
		log.Fatal("Failed to open auction session", "error", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		MaxAge: 86400,
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			log.Debug("Request received",
				"method", req.Method,
				"path", req.URL.Path,
				"remote_addr", c.RealIP(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			return next(c)
		}
	})

	handlers.NewSessionHandler(session, func() string {
		return connection.State().String()
	}, journal, cfg.Session.AuctionID, log).Register(e)
	e.GET("/metrics", echo.WrapHandler(syncMetrics.Handler()))

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("Starting control API", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Control API failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down auction watcher...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Control API forced to shutdown", "error", err)
	}
	session.Close()
	connection.Disconnect()
	if lease != nil {
		lease.Close(shutdownCtx)
	}

	log.Info("Auction watcher stopped")
}
