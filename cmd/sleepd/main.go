// Command sleepd runs the sleep-mode scheduler on the local device.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/and161185/sleep-keeper/internal/enforce"
	"github.com/and161185/sleep-keeper/internal/model"
	"github.com/and161185/sleep-keeper/internal/notify"
	"github.com/and161185/sleep-keeper/internal/scheduler"
	"github.com/and161185/sleep-keeper/internal/service"
	"github.com/and161185/sleep-keeper/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, opens the store and runs the shield service until signalled.
func main() {
	// Flags
	driver := flag.String("driver", storage.DriverSQLite, "store driver: sqlite|postgres")
	dbPath := flag.String("db", filepath.Join(storage.DefaultDir(), "sleep.db"), "sqlite database path")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (driver=postgres)")
	interval := flag.Duration("interval", scheduler.DefaultInterval, "evaluation period")
	lead := flag.Duration("lead", service.DefaultLead, "upcoming-start notification lead")
	blockFile := flag.String("block-file", filepath.Join(storage.DefaultDir(), "blocked.json"), "file the active block set is published to (empty disables enforcement)")
	pidFile := flag.String("pid-file", storage.DefaultPIDFile(), "pid file used by sleepctl to request a reload")
	lang := flag.String("lang", "en", "notification language (en, zh-Hans)")
	fcmCreds := flag.String("fcm-credentials", "", "Firebase service account file; enables push notifications")
	fcmToken := flag.String("fcm-token", "", "FCM device registration token")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	logger := newLogger(*dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("driver", *driver),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, err := storage.Open(ctx, storage.Config{Driver: *driver, Path: *dbPath, DSN: *dsn})
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	// Notifications
	var sender notify.Sender = notify.NewLogSender(logger)
	if *fcmCreds != "" {
		fcm, err := notify.NewFCMSender(ctx, *fcmCreds, *fcmToken, logger)
		if err != nil {
			logger.Fatal("fcm", zap.Error(err))
		}
		sender = fcm
	}
	dispatcher := notify.NewDispatcher(ctx, sender, notify.NewTexts(*lang), logger)

	// Services
	osFs := afero.NewOsFs()
	var enforcer enforce.Enforcer = enforce.Nop{}
	if *blockFile != "" {
		enforcer = enforce.NewFileEnforcer(osFs, *blockFile, logger)
	} else {
		logger.Warn("no block file, shield transitions are not enforced")
	}
	events := service.NewBroadcaster(logger)
	music := service.NewMusicCoordinator(events, logger)
	shield := service.NewShieldService(st.Settings, enforcer, dispatcher, music, events, logger,
		service.ShieldConfig{Interval: *interval, Lead: *lead})

	sub, unsubscribe := events.Subscribe(32)
	defer unsubscribe()
	go logEvents(logger, sub)

	if err := storage.WritePID(osFs, *pidFile); err != nil {
		logger.Warn("pid file", zap.Error(err))
	}
	defer func() { _ = osFs.Remove(*pidFile) }()

	if err := shield.Start(ctx); err != nil {
		logger.Fatal("start", zap.Error(err))
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	// Wait for stop
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-hup:
			logger.Info("reload requested")
			if err := shield.Reload(ctx); err != nil {
				logger.Error("reload", zap.Error(err))
			}
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shield.Stop(stopCtx)
	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// logEvents records every published state change until the channel closes.
func logEvents(logger *zap.Logger, ch <-chan model.Event) {
	for ev := range ch {
		fields := []zap.Field{
			zap.String("kind", string(ev.Kind)),
			zap.Bool("musicPlaying", ev.Music.IsPlaying),
			zap.Time("at", ev.At),
		}
		// music events carry no session snapshot
		if ev.Kind != model.EventMusicChanged {
			fields = append(fields, zap.String("state", ev.Session.State().String()))
		}
		logger.Info("event", fields...)
	}
}
