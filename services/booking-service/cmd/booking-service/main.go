package main

import (
	"context"
	"net/http"
	"time"

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
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/handlers"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/rebooking"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/storage"
)

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8081")
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

	repo := storage.NewBookingRepository(pool)
	customers := storage.NewCustomerRepository(pool)
	outboxRepo := outbox.NewRepository(pool, "booking-service")

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(repo, customers, outboxRepo, logger, loc)
	proposer := rebooking.NewProposer(repo, customers, outboxRepo, logger,
		config.Int("REBOOK_INTERVAL_DAYS", 28), loc)

	inboxRepo := inbox.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "booking-service")
	startConsumer := func(topic string, handler kafkax.Handler) {
		c := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handler)
		go c.Run(ctx)
	}

	startConsumer("billing.payment.recorded.v1", proposer.HandlePaymentRecorded)
	startConsumer("notify.reply.resolved.v1", bookingHandler.HandleReplyResolved)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/customers", bookingHandler.CreateCustomer)
	mux.HandleFunc("/api/v1/customers/contact", bookingHandler.UpdateContact)
	mux.HandleFunc("/api/v1/dogs", bookingHandler.CreateDog)
	mux.HandleFunc("/api/v1/appointments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			bookingHandler.Create(w, r)
		default:
			bookingHandler.List(w, r)
		}
	})
	mux.HandleFunc("/api/v1/appointments/transition", bookingHandler.Transition)
	mux.HandleFunc("/api/v1/appointments/today", bookingHandler.Today)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
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
