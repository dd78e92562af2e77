package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/shell-bridge/backend/api/handlers"
	"github.com/shell-bridge/backend/internal/db"
	"github.com/shell-bridge/backend/internal/dispatch"
	"github.com/shell-bridge/backend/internal/methods"
	"github.com/shell-bridge/backend/internal/proc"
	"github.com/shell-bridge/backend/internal/repository"
	"github.com/shell-bridge/backend/internal/term"
	"github.com/shell-bridge/backend/internal/ws"
)

const (
	serverName    = "shell-bridge"
	serverVersion = "0.3.0"
)

func main() {
	app := &cli.App{
		Name:  serverName,
		Usage: "remote shell and process access over a websocket method channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen-addr",
				Usage:   "The address for the HTTP server to listen on.",
				Value:   "0.0.0.0:8080",
				EnvVars: []string{"LISTEN_ADDR"},
			},
			&cli.StringFlag{
				Name:    "db-path",
				Usage:   "Path to the SQLite database recording terminal sessions.",
				Value:   "data/sessions.db",
				EnvVars: []string{"DB_PATH"},
			},
			&cli.StringFlag{
				Name:    "transcript-dir",
				Usage:   "Directory for terminal transcript recordings. Empty disables recording.",
				Value:   "data/transcripts",
				EnvVars: []string{"TRANSCRIPT_DIR"},
			},
			&cli.DurationFlag{
				Name:    "settle-delay",
				Usage:   "How long terminal writes wait before collecting output.",
				Value:   term.DefaultSettleDelay,
				EnvVars: []string{"SETTLE_DELAY"},
			},
			&cli.DurationFlag{
				Name:    "startup-settle",
				Usage:   "How long new terminal sessions wait before collecting their banner.",
				Value:   term.DefaultStartupSettle,
				EnvVars: []string{"STARTUP_SETTLE"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging and verbose HTTP output.",
				EnvVars: []string{"DEBUG"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	var logger *zap.Logger
	var err error
	if ctx.Bool("debug") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()
	logg := logger.Sugar()

	dbPath := ctx.String("db-path")
	transcriptDir := ctx.String("transcript-dir")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	if transcriptDir != "" {
		if err := os.MkdirAll(transcriptDir, 0o755); err != nil {
			return fmt.Errorf("creating transcript directory: %w", err)
		}
	}

	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	sessionRepo := repository.NewSessionRepository(database)

	supervisor := proc.NewSupervisor(logg)
	mux := term.NewMux(logg, term.Config{
		SettleDelay:   ctx.Duration("settle-delay"),
		StartupSettle: ctx.Duration("startup-settle"),
		TranscriptDir: transcriptDir,
	}, sessionRepo)

	dispatcher := dispatch.New(logg)
	methods.New(logg, supervisor, mux).Register(dispatcher)

	registry := ws.NewRegistry()

	if !ctx.Bool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(corsMiddleware())

	handlers.NewRPCHandler(logg, dispatcher, registry).RegisterRoutes(r)
	handlers.NewInfoHandler(serverName, serverVersion, dispatcher, registry).RegisterRoutes(r)

	api := r.Group("/api")
	handlers.NewSessionHandler(sessionRepo).RegisterRoutes(api)

	// Graceful shutdown. Channels close first so no new work arrives while
	// sessions and processes are torn down.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logg.Info("shutting down")

		registry.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mux.CloseAll(shutdownCtx)

		if err := supervisor.Close(); err != nil {
			logg.Warnf("closing supervisor: %v", err)
		}
		database.Close()
		os.Exit(0)
	}()

	listenAddr := ctx.String("listen-addr")
	logg.Infow("starting server", "addr", listenAddr)
	if err := r.Run(listenAddr); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}

// corsMiddleware returns a permissive CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
