package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "assetledger/docs"
	"assetledger/pkg/accounts"
	"assetledger/pkg/assets"
	"assetledger/pkg/buy"
	"assetledger/pkg/config"
	"assetledger/pkg/db"
	"assetledger/pkg/events"
	"assetledger/pkg/feed"
	"assetledger/pkg/registry"
	"assetledger/pkg/sendemail"
	"assetledger/pkg/settlement"
)

// @title           Asset Ledger API
// @version         1.0
// @description     Asset registry with listing, purchase and settlement

// @BasePath  /

// @schemes   http https

type rail interface {
	registry.Rail
	settlement.BalanceReader
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	log.SetLevel(cfg.LogLevel)
	if cfg.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.HasDatabase() {
		pool, err = db.Connect(ctx, db.Options{
			URL:             cfg.DatabaseURL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
			ApplySchema:     cfg.ApplySchema,
		})
		if err != nil {
			log.WithError(err).Fatal("failed to connect to database")
		}
		defer pool.Close()
	} else {
		log.Warn("DATABASE_URL not set; running without persistence")
	}

	var settlementRail rail = settlement.NewLedger()
	if cfg.SettlementBackend == config.SettlementPostgres {
		var opts []settlement.RailOption
		if cfg.PersistAssets {
			opts = append(opts, settlement.WithAssetRecording())
		}
		settlementRail = settlement.NewPostgresRail(pool, opts...)
	}
	log.WithField("backend", cfg.SettlementBackend).Info("settlement rail ready")

	bus := events.NewBusWithBuffer(cfg.EventBuffer)

	reg := registry.New(settlementRail,
		registry.WithNotifier(bus),
		registry.WithLogger(log.WithField("component", "registry")),
	)

	// Consumers outlive the HTTP server. On shutdown the bus is closed first,
	// which delivers every queued event and ends the subscriptions, and the
	// consumer context is only cancelled once they are done or time runs out.
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	var consumers sync.WaitGroup
	consume := func(name string, run func(context.Context, <-chan registry.Event)) {
		ch, err := bus.Subscribe(consumerCtx)
		if err != nil {
			log.WithError(err).WithField("consumer", name).Fatal("failed to subscribe")
		}
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			run(consumerCtx, ch)
		}()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.Use(cors.New(corsConfig(cfg)))

	assets.NewAssetHandler(assets.NewAssetService(reg)).RegisterRoutes(router)
	settlement.NewBalanceHandler(settlementRail).RegisterRoutes(router)

	var sales buy.SalesRepository
	if pool != nil {
		if cfg.PersistAssets {
			assetRepo := assets.NewPostgresAssetRepository(pool)
			restored, err := assets.RestoreRegistry(ctx, assetRepo, reg)
			if err != nil {
				log.WithError(err).Fatal("failed to restore registry")
			}
			log.WithField("assets", restored).Info("registry loaded from database")
			consume("asset-persister", assets.NewPersister(assetRepo, reg).Run)
		}

		sales = buy.NewPostgresSalesRepository(pool)
		consume("sales-journal", buy.NewJournal(sales).Run)

		accountService := accounts.NewAccountService(accounts.NewPostgresAccountRepository(pool))
		accounts.NewAccountHandler(accountService).RegisterRoutes(router)

		if cfg.HasMailer() {
			mailer := sendemail.NewEmailService(sendemail.Sender{
				APIKey: cfg.SendGridAPIKey,
				Email:  cfg.SendGridSenderEmail,
				Name:   cfg.SendGridSenderName,
			})
			consume("sale-mailer", sendemail.NewSaleMailer(mailer, accountService).Run)
		}
	}
	buy.NewBuyHandler(buy.NewBuyService(reg, sales)).RegisterRoutes(router)

	feedHandler := feed.NewHandler(feed.NewConnectionManager(), cfg.CORSAllowedOrigins)
	feedHandler.RegisterRoutes(router)
	consume("feed", feedHandler.Run)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		logger := log.WithFields(log.Fields{"addr": srv.Addr, "tls": cfg.EnableTLS})
		logger.Info("server listening")

		var err error
		if cfg.EnableTLS {
			srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	drained := make(chan struct{})
	go func() {
		if err := bus.Close(); err != nil {
			log.WithError(err).Warn("failed to close event bus")
		}
		consumers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("event consumers did not drain in time")
	}
	stopConsumers()

	log.Info("server exiting")
}

func corsConfig(cfg *config.Config) cors.Config {
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Account-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           12 * time.Hour,
	}
}

func requestLogger() gin.HandlerFunc {
	logger := log.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"latency":  time.Since(start).String(),
			"clientIP": c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
