package main

import (
	"time"

	"github.com/undercover/server/auth"
	"github.com/undercover/server/config"
	"github.com/undercover/server/logger"
	"github.com/undercover/server/monitor"
	"github.com/undercover/server/persistence"
	"github.com/undercover/server/room"
	"github.com/undercover/server/security"
	"github.com/undercover/server/server"
	"github.com/undercover/server/session"
	"github.com/undercover/server/state"
	"github.com/undercover/server/timer"
	"github.com/undercover/server/wordbank"
)

func main() {
	logger.Init()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("failed to connect to database: %v", err)
	}
	logger.Log.Info("database connection established")

	words := wordbank.New(cfg.WordBank.FilePath)

	metrics := monitor.NewMonitor("undercover")
	metrics.StartServer(cfg.Server.Host + ":9100")

	timers := timer.NewTimerManager()

	runtimeCfg := state.RuntimeConfig{
		MinPlayers:        cfg.Game.MinPlayers,
		MaxPlayers:        cfg.Game.MaxPlayers,
		DescribeTimeLimit: cfg.Game.DescribeTimeLimit,
		VoteTimeLimit:     cfg.Game.VoteTimeLimit,
		RoundDelay:        cfg.Game.RoundDelay,
	}

	rateLimitCfg := security.RateLimitConfig{
		DescribeWindow:     cfg.Security.RateLimits.DescribeWindow,
		DescribeMaxActions: cfg.Security.RateLimits.DescribeMaxActions,
		VoteWindow:         cfg.Security.RateLimits.VoteWindow,
		VoteMaxActions:     cfg.Security.RateLimits.VoteMaxActions,
		DefaultWindow:      cfg.Security.RateLimits.DefaultWindow,
		DefaultMaxActions:  cfg.Security.RateLimits.DefaultMaxActions,
	}
	filterCfg := security.WordFilterConfig{
		SensitiveWords: cfg.Security.WordFilter.SensitiveWords,
		Replacement:    cfg.Security.WordFilter.Replacement,
	}

	registry := room.NewRegistry(runtimeCfg, db, words, rateLimitCfg, filterCfg, timers, metrics, logger.Log)

	lifecycle := room.NewLifecycleManager(registry, cfg.Room.HeartbeatInterval, cfg.Room.MaxIdleTime, cfg.Game.RoundDelay, metrics, logger.Log)
	lifecycle.Start()
	defer lifecycle.Stop()

	openidClient := auth.NewOpenIDClient(auth.OpenIDConfig{
		ProviderBaseURL: cfg.Auth.ProviderBaseURL,
		ReturnURL:       cfg.Auth.ReturnURL,
		Realm:           cfg.Auth.Realm,
	})
	tokenService := auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenExpire)
	authService := auth.NewService(openidClient, tokenService, db)

	sessions := session.NewManager()

	heartbeat := cfg.Room.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}

	gameServer := server.NewGameServer(cfg.Server, cfg.CORS, heartbeat, cfg.Room.MaxIdleTime, cfg.Game.RoundDelay, registry, authService, sessions, metrics, logger.Log)

	logger.Log.Infof("starting game server on %s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("failed to start server: %v", err)
	}
}
