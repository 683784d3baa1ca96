package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
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
	DialogLimit     int    `long:"dialog-limit" env:"DIALOG_LIMIT" default:"100" description:"number of dialogs to fetch"`
	MessageLimit    int    `long:"message-limit" env:"MESSAGE_LIMIT" default:"0" description:"per-chat message limit for full sync, 0 for unlimited"`
	Full            bool   `long:"full" env:"FULL_SYNC" description:"sync complete history instead of recent messages"`
	Debug           bool   `long:"debug" env:"DEBUG" description:"enable debug logging"`
}

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger(opts.Debug)
	log.Info("starting sync", "full", opts.Full, "dialog_limit", opts.DialogLimit)

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

	syncer := &services.Sync{
		Log:      log,
		Client:   client,
		Chats:    db,
		Messages: db,
		Normalizer: &services.Normalizer{
			Log:    log,
			Client: client,
		},
	}

	if err := syncer.SyncAllDialogs(ctx, opts.DialogLimit, opts.MessageLimit, opts.Full); err != nil {
		log.Error("syncing dialogs", "error", err)
		os.Exit(1)
	}

	log.Info("sync complete")
}
