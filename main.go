package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"menubot/config"
	"menubot/database"
	"menubot/handler"
	"menubot/tool"
)

// Click-log rows older than this get folded into the lifetime counters.
const statsRetention = 30 * 24 * time.Hour

func main() {
	var path string

	flag.StringVar(
		&path,
		"config",
		"",
		"enter path to config file",
	)

	// Parse at first startup
	flag.Parse()

	// Init logger
	logger := logrus.New()

	// Get config
	conf, err := config.NewConfig(path)
	if err != nil {
		logger.WithError(err).Fatal("incorrect path or config itself")
	}

	// Set log level from config
	lvl, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logger.WithError(err).Fatal("cannot parse log level")
	}

	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})

	// Connect database
	db, err := sqlx.Connect("postgres", conf.DB.ConnectionString())
	if err != nil {
		logger.WithError(err).Fatal("cannot connect to database")
	}

	bot, err := tgbotapi.NewBotAPI(conf.Telegram.Token)
	if err != nil {
		fmt.Println("Telegram bot cannot be initialized! See, error:")
		panic(err)
	}

	fmt.Printf("Authorized on account @%s\n", bot.Self.UserName)

	h := handler.NewHandler(database.NewInstance(db), bot, logger, conf)

	// Nightly fold of old click-log rows into the lifetime counters.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@daily", func() {
		absorbed, err := h.DB.RollupLifetimeStats(time.Now().Add(-statsRetention))
		if err != nil {
			logger.WithError(err).Error("cannot roll up lifetime stats")
			return
		}
		logger.WithField("rows", absorbed).Info("rolled up lifetime stats")
	}); err != nil {
		logger.WithError(err).Fatal("cannot schedule stats rollup")
	}
	scheduler.Start()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)

	// Graceful shutdown
	s := make(chan os.Signal, 1)
	signal.Notify(s, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-s
		scheduler.Stop()
		bot.StopReceivingUpdates()
	}()

	for update := range updates {
		go func(u tgbotapi.Update) {
			defer func() {
				if r := recover(); r != nil {
					logger.WithField("panic", r).Error("recovered from panic in update handler")
				}
			}()

			if u.CallbackQuery != nil {
				if err := h.HandleCallback(u.CallbackQuery); err != nil {
					if u.CallbackQuery.Message == nil {
						logger.Error(err)
						return
					}
					handleError(h, u.CallbackQuery.Message.Chat.ID, err)
				}
				return
			}

			if u.Message == nil { // ignore any non-Message Updates
				return
			}

			switch u.Message.Command() {
			case "start":
				if err := h.Start(u.Message); err != nil {
					handleError(h, u.Message.Chat.ID, err)
				}
				return
			case "ban":
				if err := h.Ban(u.Message); err != nil {
					handleError(h, u.Message.Chat.ID, err)
				}
				return
			case "unban":
				if err := h.Unban(u.Message); err != nil {
					handleError(h, u.Message.Chat.ID, err)
				}
				return
			case "info":
				if err := h.Info(u.Message); err != nil {
					handleError(h, u.Message.Chat.ID, err)
				}
				return
			default:
				if err := h.HandleMessage(u.Message); err != nil {
					handleError(h, u.Message.Chat.ID, err)
				}
				return
			}
		}(update)
	}
}

// handleError logs every failure and relays only the human readable ones.
func handleError(h *handler.Handler, chatID int64, err error) {
	h.Logger.Error(err)

	if hrerr, ok := err.(*tool.HRError); ok {
		msg := tgbotapi.NewMessage(chatID, hrerr.Human())
		if _, err := h.Telegram.Send(msg); err != nil {
			h.Logger.Error(errors.Wrap(err, "cannot send message with human readable error"))
		}
	}
	// Unreadable error useless for people
}
