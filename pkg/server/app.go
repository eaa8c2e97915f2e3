package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	domrepo "SessionScope/internal/domain/repository"
	"SessionScope/internal/service/scheduler"
	"SessionScope/internal/usecase"
	pkgcache "SessionScope/pkg/cache"
	pkgch "SessionScope/pkg/clickhouse"
	"SessionScope/pkg/config"
	xhttp "SessionScope/pkg/http"
	pkgkafka "SessionScope/pkg/kafka"
	applogger "SessionScope/pkg/logger"
	"SessionScope/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	ingestor    *usecase.CandleIngestor
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler

	// Optional components attached by DI after construction. Each may be nil
	// when its backing service is disabled in config.
	JobQueue  *queue.RedisQueue
	Sched     *scheduler.Scheduler
	Producer  *pkgkafka.Producer
	Publisher domrepo.ReportPublisher
	Redis     *pkgcache.RedisCache

	stopIngest context.CancelFunc
}

// New creates a new App instance with its core dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	ingestor *usecase.CandleIngestor,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:      cfg,
		l:        l,
		consumer: consumer,
		kh:       kh,
		ingestor: ingestor,
		chClient: chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.l
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		a.l = l
	}

	if a.httpHandler == nil {
		return fmt.Errorf("http handler not configured")
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestLogger(l),
	)
	a.httpServer.Echo().GET("/healthz", a.healthz)

	// Ship deduplicated warn/error logs to Kafka while a producer is up.
	if a.Producer != nil && a.cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      a.Producer,
		})
	}

	// Candle ingest pipeline: the consumer feeds the ingestor, which batches
	// into the candle store. Needs both Kafka and ClickHouse enabled.
	if a.consumer != nil && a.ingestor != nil {
		ingestCtx, stopIngest := context.WithCancel(ctx)
		a.stopIngest = stopIngest
		a.ingestor.Start(ingestCtx)

		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("candle ingest started", applogger.String("topic", a.kh.Topic()))
	} else if a.consumer != nil {
		l.Warn("kafka enabled without clickhouse store, candle ingest disabled")
	}

	// Job queue workers.
	if a.JobQueue != nil {
		if err := a.JobQueue.Start(); err != nil {
			l.Error("job queue start error", applogger.Error(err))
		}
	}

	// Report schedule.
	if a.Sched != nil {
		a.Sched.Start()
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.l
	l.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Detach the log collector while the producer can still flush it.
	a.l.RemoveCollector()

	// Stop scheduling new work first.
	if a.Sched != nil {
		if err := a.Sched.Stop(shutdownCtx); err != nil {
			l.Warn("scheduler stop error", applogger.Error(err))
		}
	}

	// Shutdown HTTP server
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop the ingest pipeline: consumer first so no new candles arrive, then
	// let the ingestor drain its final batch.
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.stopIngest != nil {
		a.stopIngest()
		a.ingestor.Stop()
	}

	// Stop queue workers after in-flight jobs get their chance to finish.
	if a.JobQueue != nil {
		if err := a.JobQueue.Stop(shutdownCtx); err != nil {
			l.Warn("job queue stop error", applogger.Error(err))
		}
	}

	// Close infrastructure clients
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			l.Warn("report publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}

// healthz reports backend reachability with a real status code, outside
// the response envelope, so load balancers can probe it directly.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := echo.Map{"status": "ok"}
	healthy := true

	if a.chClient != nil {
		if err := a.chClient.Health(ctx); err != nil {
			status["clickhouse"] = err.Error()
			healthy = false
		} else {
			status["clickhouse"] = "ok"
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Client().Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
			healthy = false
		} else {
			status["redis"] = "ok"
		}
	}

	if !healthy {
		status["status"] = "degraded"
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}
