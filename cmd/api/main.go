package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/config"
	"atlaskg.org/internal/httpapi"
	"atlaskg.org/internal/kg"
	"atlaskg.org/internal/layer"
	"atlaskg.org/internal/obs"
	"atlaskg.org/internal/session"
	"atlaskg.org/internal/token"
	"atlaskg.org/internal/upgrade"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var db *sql.DB
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	accounts, err := account.NewService(account.NewPGStore(db))
	if err != nil {
		log.Fatalf("account service: %v", err)
	}

	codec, err := token.NewCodec(cfg.TokenSecret, cfg.TokenIssuer)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	sessions, err := session.NewService(accounts, codec,
		session.WithAccessTTL(cfg.AccessTokenTTL),
		session.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		log.Fatalf("session service: %v", err)
	}

	upgrades, err := upgrade.NewService(upgrade.NewPGStore(db),
		upgrade.WithCooldown(cfg.UpgradeCooldown),
	)
	if err != nil {
		log.Fatalf("upgrade service: %v", err)
	}

	layers, err := layer.NewService(layer.NewPGStore(db))
	if err != nil {
		log.Fatalf("layer service: %v", err)
	}

	kgClient, err := kg.NewClient(cfg.SPARQLEndpoint)
	if err != nil {
		log.Fatalf("kg client: %v", err)
	}
	search, err := kg.NewSearchService(kgClient)
	if err != nil {
		log.Fatalf("search service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Sessions: sessions,
		Accounts: accounts,
		Upgrades: upgrades,
		Layers:   layers,
		Search:   search,
	}, httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSecond))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting atlas-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
