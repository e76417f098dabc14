package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yoockh/yoscreen/config"
	"github.com/yoockh/yoscreen/internal/api/handlers"
	"github.com/yoockh/yoscreen/internal/api/middleware"
	"github.com/yoockh/yoscreen/internal/api/routes"
	"github.com/yoockh/yoscreen/internal/cache"
	"github.com/yoockh/yoscreen/internal/flow"
	"github.com/yoockh/yoscreen/internal/logger"
	"github.com/yoockh/yoscreen/internal/providers/llm"
	"github.com/yoockh/yoscreen/internal/providers/payment"
	mongorepo "github.com/yoockh/yoscreen/internal/repositories/mongo"
	pgrepo "github.com/yoockh/yoscreen/internal/repositories/postgres"
	"github.com/yoockh/yoscreen/internal/services"
	"github.com/yoockh/yoscreen/internal/storage"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("yoscreen")
	app := config.LoadApp()
	ctx := context.Background()

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.MigratePostgres(); err != nil {
		log.Fatalf("PostgreSQL migrate error: %v", err)
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	log.Info("Redis connected")

	// Init MongoDB (payment audit trail, optional)
	var events mongorepo.PaymentEventRepository
	if os.Getenv("MONGO_URI") != "" {
		if err := config.InitMongo(); err != nil {
			log.Fatalf("MongoDB init error: %v", err)
		}
		if err := config.EnsureMongoIndexes(); err != nil {
			log.Fatalf("MongoDB index error: %v", err)
		}
		events = mongorepo.NewPaymentEventRepo(config.MongoDatabase())
		log.Info("MongoDB connected")
	} else {
		log.Warn("MONGO_URI not set, payment events are not recorded")
	}

	if app.GCPProjectID == "" {
		log.Fatal("GCP_PROJECT environment variable is not set")
	}
	gemini, err := llm.NewVertexGemini(ctx, app.GCPProjectID, app.GCPLocation, app.ModelName)
	if err != nil {
		log.Fatalf("Vertex AI init error: %v", err)
	}
	defer gemini.Close()

	if app.StripeSecretKey == "" {
		log.Fatal("STRIPE_SECRET_KEY environment variable is not set")
	}

	var archive services.ReportArchive
	if app.ReportBucket != "" {
		uploader, err := storage.NewGCSUploader(ctx, app.ReportBucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer uploader.Close()
		archive = services.NewReportArchive(uploader)
	}

	screenings := pgrepo.NewScreeningRepo(config.PostgresDB)
	kv := cache.NewRedisCache(config.RedisClient, "yoscreen:")

	sessions := services.NewSessionStore(screenings)
	payments := services.NewPaymentGateway(payment.NewStripe(app.StripeSecretKey), screenings, events, services.PaymentConfig{
		BaseURL:            app.AppBaseURL,
		ScreeningPriceID:   app.StripePriceScreening,
		TestPremiumPriceID: app.StripePriceTestPremium,
	}, log)

	machine := flow.NewMachine(flow.Deps{
		Generator: services.NewGenerator(gemini, log),
		Sessions:  sessions,
		Payments:  payments,
		Guests:    services.NewGuestBridge(kv, app.GuestTTL),
		Archive:   archive,
	}, log)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Flow:     handlers.NewFlowHandler(machine, flow.NewStore(kv, app.FlowTTL), log),
		Session:  handlers.NewSessionHandler(sessions),
		Checkout: handlers.NewCheckoutHandler(payments),
		Admin:    handlers.NewAdminHandler(events),
	})

	srv := &http.Server{
		Addr:              ":" + app.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", app.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown")
	}
	if config.MongoClient != nil {
		_ = config.MongoClient.Disconnect(shutdownCtx)
	}
	_ = config.RedisClient.Close()
	log.Info("server stopped")
}
