// Command tiny-tune runs the now-playing widget web service.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ehjjacobson/tiny-tune/internal/auth"
	"github.com/ehjjacobson/tiny-tune/internal/config"
	"github.com/ehjjacobson/tiny-tune/internal/db"
	"github.com/ehjjacobson/tiny-tune/internal/playback"
	"github.com/ehjjacobson/tiny-tune/internal/session"
	"github.com/ehjjacobson/tiny-tune/internal/web"
	webfs "github.com/ehjjacobson/tiny-tune/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to TOML config file")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Session store: PostgreSQL when configured, in-memory otherwise.
	var store session.Store
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		database, err := db.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()

		if err := database.EnsureSchema(ctx); err != nil {
			return err
		}
		store = session.NewPGStore(database)
	} else {
		logger.Warn("DATABASE_URL not set, sessions are held in memory only")
		store = session.NewMemoryStore()
	}

	authenticator := auth.NewAuthenticator(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.RedirectURI)
	refresher := auth.NewRefresher(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
	gate := auth.NewGate(store, refresher, logger)
	fetcher := playback.NewFetcher()

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}
	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:          cfg.Addr,
		Authenticator: authenticator,
		Gate:          gate,
		Fetcher:       fetcher,
		Store:         store,
		Logger:        logger,
		TemplatesFS:   templates,
		StaticFS:      static,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run()
}
