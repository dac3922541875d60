package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pawsitive-labs/groombook/libs/config"
	"github.com/pawsitive-labs/groombook/libs/db"
	"github.com/pawsitive-labs/groombook/libs/httpx"
	"github.com/pawsitive-labs/groombook/libs/inbox"
	"github.com/pawsitive-labs/groombook/libs/kafkax"
	otelx "github.com/pawsitive-labs/groombook/libs/otel"
	"github.com/pawsitive-labs/groombook/libs/outbox"
	"github.com/pawsitive-labs/groombook/libs/runtime"
	"github.com/pawsitive-labs/groombook/migrations"
	"github.com/pawsitive-labs/groombook/services/notification-service/internal/dispatch"
	"github.com/pawsitive-labs/groombook/services/notification-service/internal/handlers"
	"github.com/pawsitive-labs/groombook/services/notification-service/internal/sms"
	"github.com/pawsitive-labs/groombook/services/notification-service/internal/storage"
)

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS, migrations.Dir); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	loc, err := time.LoadLocation(config.String("BUSINESS_TIMEZONE", "America/Chicago"))
	if err != nil {
		logger.Error("invalid business timezone; falling back to UTC", "err", err)
		loc = time.UTC
	}

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool, "notification-service")

	var relay sms.Relay
	relayURL := config.String("SMS_RELAY_URL", "")
	if relayURL != "" {
		relay = sms.NewWebhookRelay(relayURL, config.String("SMS_RELAY_TOKEN", ""))
	} else {
		logger.Warn("SMS_RELAY_URL not set; using noop relay")
		relay = sms.NewNoopRelay()
	}

	dispatcher := dispatch.NewDispatcher(repo, relay, logger,
		config.Duration("REMINDER_LEAD_WINDOW", 24*time.Hour), loc)
	notificationHandler := handlers.NewNotificationHandler(dispatcher, repo, outboxRepo, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	startConsumer := func(topic string, handler kafkax.Handler) {
		c := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handler)
		go c.Run(ctx)
	}

	startConsumer("booking.appointment.created.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string   `json:"appointment_id"`
			BusinessID    string   `json:"business_id"`
			CustomerID    string   `json:"customer_id"`
			CustomerName  string   `json:"customer_name"`
			CustomerPhone string   `json:"customer_phone"`
			SMSConsent    bool     `json:"sms_consent"`
			ScheduledAt   string   `json:"scheduled_at"`
			Services      []string `json:"services"`
			Status        string   `json:"status"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == "" || payload.BusinessID == "" || payload.Status == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}
		scheduledAt, err := time.Parse(time.RFC3339, payload.ScheduledAt)
		if err != nil {
			logger.Error("invalid scheduled_at on event", "err", err, "topic", msg.Topic)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := repo.UpsertAppointment(ctx, tx, storage.CachedAppointment{
			AppointmentID: payload.AppointmentID,
			BusinessID:    payload.BusinessID,
			CustomerID:    payload.CustomerID,
			CustomerName:  payload.CustomerName,
			Phone:         payload.CustomerPhone,
			SMSConsent:    payload.SMSConsent,
			Status:        payload.Status,
			ScheduledAt:   scheduledAt,
			Services:      payload.Services,
		}); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})

	startConsumer("booking.appointment.transitioned.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			Status        string `json:"status"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == "" || payload.Status == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := repo.UpdateAppointmentStatus(ctx, tx, payload.AppointmentID, payload.Status); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/notifications/confirmation", notificationHandler.Confirmation)
	mux.HandleFunc("/api/v1/notifications/reminder", notificationHandler.Reminder)

	// The inbound webhook is the one public surface; it gets its own limiter.
	var webhookLimit httpx.Middleware
	redisAddr := config.String("REDIS_ADDR", "")
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter := httpx.NewRedisRateLimiter(rdb, config.Int("WEBHOOK_RATE_LIMIT", 60), time.Minute, "sms-webhook")
		webhookLimit = limiter.Middleware(logger, true)
	} else {
		logger.Warn("REDIS_ADDR not set; using in-memory rate limiter")
		webhookLimit = httpx.NewRateLimiter(config.Int("WEBHOOK_RATE_LIMIT", 60), time.Minute).Middleware()
	}
	mux.Handle("/webhooks/sms", httpx.Chain(http.HandlerFunc(notificationHandler.Inbound), webhookLimit))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
