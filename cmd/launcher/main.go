// Package main runs the token launch HTTP service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	flag "github.com/spf13/pflag"

	"github.com/R3E-Network/launch_layer/internal/cache"
	"github.com/R3E-Network/launch_layer/internal/chain"
	"github.com/R3E-Network/launch_layer/internal/config"
	"github.com/R3E-Network/launch_layer/internal/jito"
	"github.com/R3E-Network/launch_layer/internal/logging"
	"github.com/R3E-Network/launch_layer/internal/metrics"
	"github.com/R3E-Network/launch_layer/internal/middleware"
	"github.com/R3E-Network/launch_layer/internal/pinning"
	"github.com/R3E-Network/launch_layer/services/launcher/allocator"
	"github.com/R3E-Network/launch_layer/services/launcher/assembler"
	"github.com/R3E-Network/launch_layer/services/launcher/pipeline"
	"github.com/R3E-Network/launch_layer/services/launcher/service"
	"github.com/R3E-Network/launch_layer/services/launcher/store"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment is decoded")
	programsFile := flag.String("config", "", "YAML program table overlay (overrides LAUNCHER_PROGRAMS_FILE)")
	flag.Parse()

	if *programsFile != "" {
		os.Setenv("LAUNCHER_PROGRAMS_FILE", *programsFile)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Config{
		Service: service.ServiceName,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainClient, err := chain.NewClient(chain.Config{
		RPCURL:          cfg.Solana.RPCURL,
		WSURL:           cfg.Solana.WSURL,
		Commitment:      cfg.Solana.Commitment,
		Timeout:         cfg.Solana.Timeout,
		PollInterval:    cfg.Solana.PollInterval,
		MaxConfirmPolls: cfg.Solana.MaxConfirmPolls,
	})
	if err != nil {
		log.Fatalf("Failed to create chain client: %v", err)
	}

	// A nil *jito.Client must not reach the pipeline as a non-nil Relay.
	var relay pipeline.Relay
	if cfg.Jito.BlockEngineURL != "" {
		jitoClient, err := jito.NewClient(jito.Config{
			BundleURL:   cfg.Jito.BlockEngineURL,
			AuthUUID:    cfg.Jito.AuthUUID,
			TipAccounts: cfg.Programs.TipAccounts,
			Timeout:     cfg.Jito.Timeout,
		})
		if err != nil {
			log.Fatalf("Failed to create block engine client: %v", err)
		}
		relay = jitoClient
	} else {
		log.Printf("Warning: JITO_BLOCK_ENGINE_URL not set; bundle submission disabled")
	}

	pinner, err := newPinner(cfg.Pinning)
	if err != nil {
		log.Fatalf("Failed to create pinning backend: %v", err)
	}

	var uriCache cache.Cache = cache.NewMemory()
	var redisCache *cache.Redis
	if cfg.Cache.RedisURL != "" {
		redisCache, err = cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.KeyPrefix)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		uriCache = redisCache
	} else {
		log.Printf("Warning: REDIS_URL not set; metadata cache is in-process")
	}

	var (
		db         *sqlx.DB
		repo       store.Repository
		reconciler *service.Reconciler
	)
	if cfg.Database.URL != "" {
		db, err = store.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.ConnMaxLifetime)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if cfg.Database.AutoMigrate {
			if err := store.Apply(ctx, db); err != nil {
				log.Fatalf("Failed to apply migrations: %v", err)
			}
		}
		repo = store.NewRepository(db)
	} else {
		log.Printf("Warning: DATABASE_URL not set; launch records disabled")
	}

	registry, err := cfg.Programs.Registry()
	if err != nil {
		log.Fatalf("Failed to build program registry: %v", err)
	}

	svc, err := service.New(service.Config{
		Registry: registry,
		Allocator: allocator.New(chainClient, allocator.Config{
			MaxAttempts: cfg.Pipeline.AllocateAttempts,
			Logger:      logger,
		}),
		Assembler: assembler.New(chainClient, logger),
		Submitter: pipeline.New(chainClient, relay, pipeline.Config{
			TipLamports:       cfg.Jito.TipLamports,
			BundleAttempts:    cfg.Pipeline.BundleAttempts,
			BundleBackoffBase: cfg.Pipeline.BundleBackoffBase,
			BundleBackoffMax:  cfg.Pipeline.BundleBackoffMax,
			ConfirmAttempts:   cfg.Pipeline.ConfirmAttempts,
			ConfirmInterval:   cfg.Pipeline.ConfirmInterval,
			DirectAttempts:    cfg.Pipeline.DirectAttempts,
			Commitment:        cfg.Solana.Commitment,
			Logger:            logger,
			Metrics:           metrics.Submission{},
		}),
		Ledger:         chainClient,
		Pinner:         pinner,
		Cache:          uriCache,
		Repository:     repo,
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout,
		Commitment:     cfg.Solana.Commitment,
	})
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	if repo != nil {
		reconciler, err = service.NewReconciler(repo, chainClient, service.ReconcilerConfig{
			Schedule:   cfg.Server.ReconcileSpec,
			Commitment: cfg.Solana.Commitment,
			Logger:     logger,
		})
		if err != nil {
			log.Fatalf("Failed to create reconciler: %v", err)
		}
		reconciler.Start()
	}

	router := mux.NewRouter()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.NewCORSMiddleware(cfg.AllowedOriginList()).Handler)
	if cfg.Server.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
		limiter.StartCleanup(ctx, time.Minute)
		router.Use(limiter.Handler)
	}
	if cfg.Auth.JWTSecret != "" {
		auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer, logger, []string{"/health", "/metrics"})
		router.Use(auth.Handler)
	} else {
		log.Printf("Warning: LAUNCHER_JWT_SECRET not set; endpoints are unauthenticated")
	}
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	svc.RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
		// Submission can wait out several confirmation rounds.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s", service.ServiceName, cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if reconciler != nil {
		reconciler.Stop(shutdownCtx)
	}
	cancel()
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Printf("Redis close error: %v", err)
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Printf("Database close error: %v", err)
		}
	}

	log.Println("Service stopped")
}

// newPinner selects the metadata pinning backend. Config validation has
// already rejected unknown backends.
func newPinner(cfg config.PinningConfig) (pinning.Service, error) {
	switch cfg.Backend {
	case "pinata":
		return pinning.NewPinata(pinning.PinataConfig{
			APIURL:  cfg.PinataAPIURL,
			JWT:     cfg.PinataJWT,
			Gateway: cfg.PinataGateway,
			Timeout: cfg.Timeout,
		})
	case "s3":
		return pinning.NewObjectStore(pinning.ObjectStoreConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			Gateway:   cfg.S3Gateway,
		})
	default:
		return nil, fmt.Errorf("unknown pinning backend %q", cfg.Backend)
	}
}
