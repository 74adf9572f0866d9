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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/config"
	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/metrics"
	"github.com/mamadbah2/pharmacy/internal/repository"
	"github.com/mamadbah2/pharmacy/internal/repository/sheets"
	"github.com/mamadbah2/pharmacy/internal/scheduler"
	"github.com/mamadbah2/pharmacy/internal/server/handlers"
	"github.com/mamadbah2/pharmacy/internal/server/router"
	alertsvc "github.com/mamadbah2/pharmacy/internal/service/alerts"
	aislesvc "github.com/mamadbah2/pharmacy/internal/service/aisles"
	historysvc "github.com/mamadbah2/pharmacy/internal/service/history"
	medicinesvc "github.com/mamadbah2/pharmacy/internal/service/medicines"
	reportingsvc "github.com/mamadbah2/pharmacy/internal/service/reporting"
	whatsappsvc "github.com/mamadbah2/pharmacy/internal/service/whatsapp"
	"github.com/mamadbah2/pharmacy/internal/storage"
	"github.com/mamadbah2/pharmacy/internal/storage/memory"
	"github.com/mamadbah2/pharmacy/internal/storage/mongodb"
	whatsappclient "github.com/mamadbah2/pharmacy/pkg/clients/whatsapp"
	"github.com/mamadbah2/pharmacy/pkg/logger"
)

type stores struct {
	medicines storage.Collection[models.Medicine]
	aisles    storage.Collection[models.Aisle]
	history   storage.Collection[models.HistoryEntry]
	health    router.HealthFunc
	close     func(context.Context) error
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics, err := metrics.New(reg)
	if err != nil {
		baseLogger.Fatal("failed to register metrics", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, appMetrics, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to open storage", zap.Error(err))
	}
	defer func() {
		if err := st.close(context.Background()); err != nil {
			baseLogger.Error("failed to close storage", zap.Error(err))
		}
	}()

	historySvc := historysvc.NewService(st.history, appMetrics, baseLogger.Named("svc.history"))
	medicineSvc := medicinesvc.NewService(st.medicines, st.aisles, historySvc, baseLogger.Named("svc.medicines"))
	aisleSvc := aislesvc.NewService(st.aisles, medicineSvc, historySvc, baseLogger.Named("svc.aisles"))
	defer historySvc.Close()
	defer medicineSvc.Close()
	defer aisleSvc.Close()

	if cfg.Storage.Driver == config.DriverMongoDB {
		// Change streams need a replica set; without one the services only
		// see their own writes.
		for name, follow := range map[string]func(context.Context) (storage.Subscription, error){
			"medicines": medicineSvc.Follow,
			"aisles":    aisleSvc.Follow,
			"history":   historySvc.Follow,
		} {
			sub, err := follow(ctx)
			if err != nil {
				baseLogger.Warn("change stream unavailable", zap.String("collection", name), zap.Error(err))
				continue
			}
			defer sub.Cancel()
		}
	}

	medicineRepo := repository.NewMedicineRepository(medicineSvc, baseLogger.Named("repo.medicines"))
	aisleRepo := repository.NewAisleRepository(aisleSvc, baseLogger.Named("repo.aisles"))
	historyRepo := repository.NewHistoryRepository(historySvc, baseLogger.Named("repo.history"))

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetsRepo = repo
	} else {
		baseLogger.Warn("google sheets not configured, stock export disabled")
	}
	reportingSvc := reportingsvc.NewService(medicineSvc, historySvc, sheetsRepo, cfg.Location(), baseLogger.Named("svc.reporting"))

	var alerts *alertsvc.Service
	jobs := scheduler.Jobs{History: historyRepo}
	if cfg.WhatsApp.Enabled() {
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(whatsClient, baseLogger.Named("svc.whatsapp"))
		alerts = alertsvc.NewService(medicineSvc, messagingSvc, cfg.WhatsApp.AlertRecipient, cfg.Alerts.ExpiryWindow(), cfg.Location(), baseLogger.Named("svc.alerts"))
		jobs.Alerts = alerts
	} else {
		baseLogger.Warn("whatsapp not configured, stock alerts disabled")
	}
	if sheetsRepo != nil {
		jobs.Exporter = reportingSvc
	}

	sched := scheduler.NewScheduler(*cfg, jobs, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	var scanner handlers.AlertScanner
	if alerts != nil {
		scanner = alerts
	}
	inventoryHandler := handlers.NewInventoryHandler(medicineRepo, aisleRepo, historyRepo, reportingSvc, scanner, baseLogger.Named("handlers.inventory"))
	engine := router.New(inventoryHandler, router.Options{
		Health:         st.health,
		Metrics:        appMetrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, m *metrics.Metrics, baseLogger *zap.Logger) (*stores, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		baseLogger.Warn("using in-memory storage, data is lost on restart")
		return &stores{
			medicines: storage.Instrument[models.Medicine](memory.NewCollection[models.Medicine](), storage.MedicinesCollection, m),
			aisles:    storage.Instrument[models.Aisle](memory.NewCollection[models.Aisle](), storage.AislesCollection, m),
			history:   storage.Instrument[models.HistoryEntry](memory.NewCollection[models.HistoryEntry](), storage.HistoryCollection, m),
			close:     func(context.Context) error { return nil },
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	client, err := mongodb.Connect(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("store.mongodb"))
	if err != nil {
		return nil, err
	}
	if err := client.EnsureIndexes(connectCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}

	return &stores{
		medicines: storage.Instrument[models.Medicine](mongodb.OpenCollection[models.Medicine](client, storage.MedicinesCollection), storage.MedicinesCollection, m),
		aisles:    storage.Instrument[models.Aisle](mongodb.OpenCollection[models.Aisle](client, storage.AislesCollection), storage.AislesCollection, m),
		history:   storage.Instrument[models.HistoryEntry](mongodb.OpenCollection[models.HistoryEntry](client, storage.HistoryCollection), storage.HistoryCollection, m),
		health: func(c *gin.Context) error {
			return client.Ping(c.Request.Context())
		},
		close: client.Close,
	}, nil
}
