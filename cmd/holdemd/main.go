package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/pokerhall/holdemd/internal/auth"
	"github.com/pokerhall/holdemd/internal/httpapi"
	"github.com/pokerhall/holdemd/internal/server"
	"github.com/pokerhall/holdemd/internal/store"
)

var CLI struct {
	Config   string `short:"c" default:"holdemd.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Server address to bind to (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	Database string `short:"d" help:"Path to sqlite database (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := server.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.Database != "" {
		cfg.Server.Database = CLI.Database
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	st, err := store.Open(cfg.Server.Database)
	if err != nil {
		logger.Error("Failed to open database", "path", cfg.Server.Database, "error", err)
		kctx.Exit(1)
	}
	defer st.Close()

	tokens := auth.NewTokens(cfg.Server.JWTSecret, time.Duration(cfg.Server.TokenTTLMinutes)*time.Minute)
	registry := server.NewRegistry(st, nil, logger)

	for _, tableCfg := range cfg.Tables {
		runtime := registry.CreateTable(tableCfg.Name, tableCfg.SmallBlind, tableCfg.BigBlind, tableCfg.MaxPlayers)
		logger.Info("Created table",
			"id", runtime.TableID(),
			"name", tableCfg.Name,
			"stakes", fmt.Sprintf("$%d/$%d", tableCfg.SmallBlind, tableCfg.BigBlind),
			"maxPlayers", tableCfg.MaxPlayers)
	}

	mux := http.NewServeMux()
	api := httpapi.New(st, registry, tokens, cfg.Server.StartingBalance, logger)
	api.Register(mux)
	srv := server.NewServer(cfg.ListenAddress(), registry, tokens, mux, logger)

	logger.Info("Starting holdemd",
		"addr", cfg.ListenAddress(),
		"tables", len(cfg.Tables),
		"database", cfg.Server.Database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err)
		kctx.Exit(1)
	}
}
