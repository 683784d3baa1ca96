package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"nuclight.org/telegram-bridge/app/telegram"
	"nuclight.org/telegram-bridge/pkg/logger"
)

var opts struct {
	TelegramAPIID   int    `long:"telegram-api-id" env:"TELEGRAM_API_ID" required:"true" description:"telegram api id from my.telegram.org"`
	TelegramAPIHash string `long:"telegram-api-hash" env:"TELEGRAM_API_HASH" required:"true" description:"telegram api hash from my.telegram.org"`
	SessionPath     string `long:"session-path" env:"SESSION_PATH" default:"./session.json" description:"path to the telegram session file"`
	Debug           bool   `long:"debug" env:"DEBUG" description:"enable debug logging"`
}

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger(opts.Debug)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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
	if authorized {
		me, err := client.Me(ctx)
		if err != nil {
			log.Error("getting own user", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Already logged in as %s (id %d)\n", telegram.DisplayName(me), me.ID)
		os.Exit(0)
	}

	reader := bufio.NewReader(os.Stdin)

	phone, err := prompt(reader, "Phone number (international format): ")
	if err != nil {
		log.Error("reading phone number", "error", err)
		os.Exit(1)
	}

	if err := client.SendCodeRequest(ctx, phone); err != nil {
		log.Error("requesting login code", "error", err)
		os.Exit(1)
	}

	code, err := prompt(reader, "Login code: ")
	if err != nil {
		log.Error("reading login code", "error", err)
		os.Exit(1)
	}

	err = client.SignIn(ctx, phone, code, "")
	if errors.Is(err, telegram.ErrPasswordNeeded) {
		password, perr := prompt(reader, "Two-factor password: ")
		if perr != nil {
			log.Error("reading password", "error", perr)
			os.Exit(1)
		}
		err = client.SignIn(ctx, phone, code, password)
	}
	if err != nil {
		log.Error("signing in", "error", err)
		os.Exit(1)
	}

	me, err := client.Me(ctx)
	if err != nil {
		log.Error("getting own user", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Logged in as %s (id %d)\n", telegram.DisplayName(me), me.ID)
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
