package main

import (
	"context"
	"errors"
	"flag"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"lms-progress/pkg/analytics"
	"lms-progress/pkg/cache"
	"lms-progress/pkg/catalog"
	"lms-progress/pkg/certificate"
	"lms-progress/pkg/clock"
	"lms-progress/pkg/config"
	"lms-progress/pkg/email"
	"lms-progress/pkg/enrollment"
	"lms-progress/pkg/handlers"
	"lms-progress/pkg/initial"
	"lms-progress/pkg/kfka"
	"lms-progress/pkg/middleware"
	"lms-progress/pkg/progress"
	"lms-progress/pkg/routes"
	"lms-progress/pkg/search"
	"lms-progress/pkg/store"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(*envFile, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(envFile string, logger *slog.Logger) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initial.ConnectDB(cfg.DB, logger)
	if err != nil {
		return err
	}
	if err := initial.Migrate(db); err != nil {
		return err
	}
	st := store.NewGorm(db)
	clk := clock.System{}

	var events kfka.Publisher = kfka.Nop{}
	if cfg.Kafka.Enabled {
		kp := kfka.NewKafkaPublisher(cfg.Kafka.Brokers)
		defer kp.Close()
		events = kp
	}

	var index catalog.Index
	if cfg.Elastic.Enabled {
		es, err := initial.NewElasticsearch(cfg.Elastic)
		if err != nil {
			return err
		}
		sc := search.New(es, cfg.Elastic.Index)
		if err := initial.Reindex(ctx, db, sc, logger); err != nil {
			logger.Warn("search reindex", "error", err)
		}
		index = sc
	}

	var dashCache analytics.Cache
	if cfg.RedisURL != "" {
		rc, err := cache.New(ctx, cfg.RedisURL, "lms")
		if err != nil {
			logger.Warn("redis unavailable, analytics cache disabled", "error", err)
		} else {
			defer rc.Close()
			dashCache = rc
		}
	}

	var mailer email.Mailer
	if cfg.SMTP.Enabled {
		mailer = email.NewSMTPMailer(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumers(ctx, &wg, cfg, st, mailer, logger)
	}

	agg := analytics.NewAggregator(st, clk, dashCache, cfg.CacheTTL, logger)
	h := handlers.New(
		catalog.New(st, index, logger).WithInvalidator(agg),
		enrollment.NewWorkflow(st, clk, events, logger).WithInvalidator(agg),
		progress.NewTracker(st, clk, events, logger).WithInvalidator(agg),
		agg,
		logger,
	)
	r := mux.NewRouter()
	routes.Setup(r, h, middleware.NewAuth(cfg.JWTSecret, st, logger).Middleware)
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: c.Handler(r)}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}

// consumers starts the Kafka readers that send decision mails and issue
// certificates. Each only runs when its backing service is configured.
func consumers(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, st store.Store, mailer email.Mailer, logger *slog.Logger) {
	if mailer != nil {
		notifier := email.NewNotifier(mailer, cfg.PublicURL)
		reader := kfka.NewReader(kfka.ReaderConfig{Brokers: cfg.Kafka.Brokers, Topic: kfka.TopicEnrollment, GroupID: cfg.Kafka.GroupID + "-notifications"})
		wg.Add(1)
		go func() {
			defer wg.Done()
			kfka.Consume(ctx, reader, logger.With("consumer", "enrollment"), notifier.EnrollmentReviewed)
		}()
	}

	if cfg.Minio.Enabled {
		client, err := initial.NewMinio(cfg.Minio)
		if err != nil {
			logger.Error("minio unavailable, certificates disabled", "error", err)
			return
		}
		objects := certificate.NewMinioStore(client, cfg.Minio.Bucket, cfg.Minio.PublicURL)
		if err := objects.EnsureBucket(ctx); err != nil {
			logger.Error("certificate bucket", "error", err)
			return
		}
		issuer := certificate.NewIssuer(st, objects, mailer, logger)
		reader := kfka.NewReader(kfka.ReaderConfig{Brokers: cfg.Kafka.Brokers, Topic: kfka.TopicCompletions, GroupID: cfg.Kafka.GroupID + "-certificates"})
		wg.Add(1)
		go func() {
			defer wg.Done()
			kfka.Consume(ctx, reader, logger.With("consumer", "certificates"), issuer.CourseCompleted)
		}()
	}
}
