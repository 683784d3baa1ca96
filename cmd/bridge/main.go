package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"nuclight.org/telegram-bridge/app/server"
	"nuclight.org/telegram-bridge/app/services"
	"nuclight.org/telegram-bridge/app/storage"
	"nuclight.org/telegram-bridge/app/telegram"
	"nuclight.org/telegram-bridge/pkg/logger"
)

var opts struct {
	TelegramAPIID   int    `long:"telegram-api-id" env:"TELEGRAM_API_ID" required:"true" description:"telegram api id from my.telegram.org"`
	TelegramAPIHash string `long:"telegram-api-hash" env:"TELEGRAM_API_HASH" required:"true" description:"telegram api hash from my.telegram.org"`
	SessionPath     string `long:"session-path" env:"SESSION_PATH" default:"./session.json" description:"path to the telegram session file"`
	DBPath          string `long:"db-path" env:"DB_PATH" default:"./db/bridge.sqlite" description:"path to the sqlite database file"`
	ListenAddr      string `long:"listen-addr" env:"LISTEN_ADDR" default:":8080" description:"http listen address"`
	DownloadDir     string `long:"download-dir" env:"DOWNLOAD_DIR" default:"./downloads" description:"directory for downloaded media"`
	StartupSync     bool   `long:"startup-sync" env:"STARTUP_SYNC" description:"run a quick sync of all dialogs on startup"`
	DialogLimit     int    `long:"dialog-limit" env:"DIALOG_LIMIT" default:"100" description:"number of dialogs to fetch during startup sync"`
	SentryDSN       string `long:"sentry-dsn" env:"SENTRY_DSN" description:"sentry dsn for error reporting"`
	Debug           bool   `long:"debug" env:"DEBUG" description:"enable debug logging"`
}

var Revision = "dev"

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger(opts.Debug)
	log.Info("starting bridge", "revision", Revision)

	if opts.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn:     opts.SentryDSN,
			Release: Revision,
		})
		if err != nil {
			log.Error("initializing sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.NewSQLite(ctx, opts.DBPath)
	if err != nil {
		log.Error("creating sqlite3 database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("closing sqlite3 database", "error", err)
		}
	}()

	client := &telegram.Client{
		Log:         log,
		APIID:       opts.TelegramAPIID,
		APIHash:     opts.TelegramAPIHash,
		SessionPath: opts.SessionPath,
	}

	normalizer := &services.Normalizer{
		Log:    log,
		Client: client,
	}

	syncer := &services.Sync{
		Log:        log,
		Client:     client,
		Chats:      db,
		Messages:   db,
		Normalizer: normalizer,
	}

	bridge := &services.Bridge{
		Log:         log,
		Client:      client,
		Chats:       db,
		Messages:    db,
		Normalizer:  normalizer,
		DownloadDir: opts.DownloadDir,
	}

	client.OnNewMessage(syncer.HandleNewMessage)

	if err := client.Connect(ctx); err != nil {
		log.Error("connecting to telegram", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error("closing telegram client", "error", err)
		}
	}()

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		log.Error("checking authorization", "error", err)
		os.Exit(1)
	}
	if !authorized {
		log.Error("session is not authorized, run the login command first")
		os.Exit(1)
	}

	if opts.StartupSync {
		go func() {
			if err := syncer.SyncAllDialogs(ctx, opts.DialogLimit, 0, false); err != nil {
				log.Error("startup sync", "error", err)
				sentry.CaptureException(err)
			}
		}()
	}

	go func() {
		if err := client.RunUpdates(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("running updates", "error", err)
		}
	}()

	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &server.Server{
		Log:      log,
		Chats:    db,
		Messages: db,
		Bridge:   bridge,
		Sync:     syncer,
	}

	httpServer := &http.Server{
		Addr:    opts.ListenAddr,
		Handler: srv.Router(),
	}

	go func() {
		log.Info("http server listening", "addr", opts.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			sentry.CaptureException(err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("stopping bridge")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutting down http server", "error", err)
	}

	os.Exit(0)
}
