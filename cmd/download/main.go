package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
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
	DBPath          string `long:"db-path" env:"DB_PATH" required:"true" description:"path to the sqlite database file"`
	OutputDir       string `long:"output" env:"OUTPUT_DIR" default:"./downloads" description:"output directory for downloaded files"`
	ChatID          int64  `long:"chat-id" env:"CHAT_ID" description:"restrict downloads to a single chat"`
	MediaType       string `long:"media-type" env:"MEDIA_TYPE" description:"restrict downloads to a media type"`
	BatchSize       int    `long:"batch-size" env:"BATCH_SIZE" default:"200" description:"number of messages to load per database page"`
	Workers         int    `long:"workers" env:"DOWNLOAD_WORKERS" default:"5" description:"number of concurrent download workers"`
	Debug           bool   `long:"debug" env:"DEBUG" description:"enable debug logging"`
}

var (
	wg         sync.WaitGroup
	downloaded int64
	skipped    int64
	failed     int64
)

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger(opts.Debug)
	log.Info("starting download")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		log.Error("creating output directory", "error", err)
		os.Exit(1)
	}

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

	bridge := &services.Bridge{
		Log:      log,
		Client:   client,
		Chats:    db,
		Messages: db,
		Normalizer: &services.Normalizer{
			Log:    log,
			Client: client,
		},
		DownloadDir: opts.OutputDir,
	}

	var chatID *int64
	if opts.ChatID != 0 {
		chatID = &opts.ChatID
	}

	type downloadTask struct {
		messageID int64
		chatID    int64
	}

	var tasks []downloadTask
	for offset := 0; ; offset += opts.BatchSize {
		messages, err := db.GetMessagesWithMedia(ctx, chatID, opts.MediaType, opts.BatchSize, offset)
		if err != nil {
			log.Error("listing media messages", "error", err)
			os.Exit(1)
		}
		if len(messages) == 0 {
			break
		}
		for _, msg := range messages {
			if msg.LocalPath != "" {
				if _, err := os.Stat(msg.LocalPath); err == nil {
					atomic.AddInt64(&skipped, 1)
					continue
				}
			}
			tasks = append(tasks, downloadTask{messageID: msg.ID, chatID: msg.ChatID})
		}
		if len(messages) < opts.BatchSize {
			break
		}
	}

	log.Info("files to download", "count", len(tasks), "already_present", skipped)

	if len(tasks) == 0 {
		log.Info("no files to download")
		os.Exit(0)
	}

	taskChan := make(chan downloadTask, len(tasks))
	for _, task := range tasks {
		taskChan <- task
	}
	close(taskChan)

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				ok, message, _ := bridge.DownloadMedia(ctx, task.messageID, task.chatID, opts.OutputDir)
				if !ok {
					log.Error("downloading media",
						"message_id", task.messageID,
						"chat_id", task.chatID,
						"reason", message,
					)
					atomic.AddInt64(&failed, 1)
					continue
				}

				n := atomic.AddInt64(&downloaded, 1)
				if n%10 == 0 {
					log.Debug("progress", "downloaded", n)
				}
			}
		}()
	}

	wg.Wait()

	log.Info("done",
		"downloaded", downloaded,
		"skipped", skipped,
		"failed", failed,
	)
}
