package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marleyhealth/scheduling/internal/api"
	"github.com/marleyhealth/scheduling/internal/config"
	"github.com/marleyhealth/scheduling/internal/db"
	"github.com/marleyhealth/scheduling/internal/dicomweb"
	"github.com/marleyhealth/scheduling/internal/observability/metrics"
	redisclient "github.com/marleyhealth/scheduling/internal/redis"
	"github.com/marleyhealth/scheduling/internal/scheduling"
	"github.com/marleyhealth/scheduling/internal/workitem"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	schedulingMetrics := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)
	worklistMetrics := metrics.NewWorklistMetrics(prometheus.DefaultRegisterer)

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisBookingLocker(rdb, cfg.LockTTL)
	svc := scheduling.NewService(repo, locker, cfg, schedulingMetrics)

	queue := scheduling.NewRecurrenceQueue(svc, cfg.RecurrenceQueueLen)
	go queue.Run(rootCtx)

	worklistRepo := workitem.NewPgRepository(pgPool)
	worklistSvc := workitem.NewService(worklistRepo, svc, cfg, worklistMetrics)

	router := api.NewRouter(api.RouterConfig{
		Service:         svc,
		RecurrenceQueue: queue,
		DicomWeb:        dicomweb.NewHandler(worklistSvc, cfg),
		PgPool:          pgPool,
		Redis:           rdb,
		Env:             cfg.Env,
		Version:         version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
