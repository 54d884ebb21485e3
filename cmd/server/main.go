package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"booking-service/internal/app"
	"booking-service/internal/calendar"
	"booking-service/internal/config"
	"booking-service/internal/logger"
	"booking-service/internal/notify"
	"booking-service/internal/server"
	"booking-service/internal/worker"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	var oauthCfg *oauth2.Config
	var mirror calendar.Provider = calendar.Disabled{}
	if cfg.GoogleEnabled() {
		oauthCfg = calendar.NewGoogleOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		mirror = &calendar.Google{OAuth: oauthCfg, Tokens: store, Log: log}
	} else {
		log.Info("google calendar not configured, mirroring disabled")
	}
	provider := calendar.Composite{
		Mirror: mirror,
		Extra:  []calendar.BusyReader{calendar.NewICSFeed(store, cfg.CalendarTimeout, log)},
	}

	appInstance := &app.App{
		Store:           store,
		Calendar:        provider,
		Log:             log,
		OAuth:           oauthCfg,
		BaseURL:         cfg.PublicBaseURL,
		CalendarTimeout: cfg.CalendarTimeout,
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisCacheDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, busy cache disabled", zap.Error(err))
		} else {
			appInstance.BusyCache = &calendar.CachedBusy{Next: provider, Client: rdb, TTL: cfg.BusyCacheTTL, Log: log}
		}
	}

	var mailer notify.Dispatcher = notify.Disabled{Log: log}
	if cfg.SMTPEnabled() {
		sender := notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
		mailer = &notify.Mailer{Sender: sender, BaseURL: cfg.PublicBaseURL, Log: log}
	} else {
		log.Info("SMTP not configured, emails are only logged")
	}
	appInstance.Notifier = mailer

	if cfg.QueueEmails {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisQueueDB}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		appInstance.Notifier = &notify.Queue{Client: client}

		emails := worker.NewEmailWorker(redisOpt, mailer, log)
		if err := emails.Start(); err != nil {
			log.Fatal("failed to start email worker", zap.Error(err))
		}
		defer emails.Shutdown()
	}

	reminders, err := worker.NewReminderScheduler(cfg.ReminderSchedule, appInstance, log)
	if err != nil {
		log.Fatal("invalid reminder schedule", zap.Error(err))
	}
	reminders.Start()
	defer reminders.Stop()

	auth := app.NewAuthenticator(cfg.JWTSecret, cfg.StaticTokens)
	router := app.NewRouter(appInstance, app.RouterOptions{
		Auth:            auth,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.AllowedOrigins(),
		TrustedProxies:  cfg.Proxies(),
	})

	if err := server.Run(ctx, cfg.AppPort, router, log); err != nil {
		log.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (app.Store, func()) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return app.NewMemStore(), func() {}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	pg, err := app.NewPGStore(connectCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to db", zap.Error(err))
	}
	if err := pg.Migrate(connectCtx); err != nil {
		pg.Close()
		log.Fatal("failed to migrate db", zap.Error(err))
	}
	return pg, pg.Close
}
