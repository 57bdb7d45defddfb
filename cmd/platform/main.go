package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"

	"github.com/healthlock/consent-node/internal/api"
	"github.com/healthlock/consent-node/internal/audit"
	"github.com/healthlock/consent-node/internal/cache"
	"github.com/healthlock/consent-node/internal/config"
	"github.com/healthlock/consent-node/internal/core/services"
	"github.com/healthlock/consent-node/internal/db"
	"github.com/healthlock/consent-node/internal/health"
	"github.com/healthlock/consent-node/internal/kms"
	"github.com/healthlock/consent-node/internal/log"
	"github.com/healthlock/consent-node/internal/providers"
	"github.com/healthlock/consent-node/internal/ratelimit"
	"github.com/healthlock/consent-node/internal/redis"
	"github.com/healthlock/consent-node/internal/repositories"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Error(context.Background(), "cannot load config", err)
		return
	}
	if err := cfg.Sanitize(); err != nil {
		log.Error(context.Background(), "invalid config", err)
		return
	}

	ctx, cancel := context.WithCancel(log.NewContext(context.Background(), cfg.Log.Level, cfg.Log.Mode, os.Stdout))
	defer cancel()

	storage, err := db.NewStorage(cfg.Database.URL)
	if err != nil {
		log.Error(ctx, "cannot connect to database", err)
		return
	}
	defer func() { _ = storage.Close() }()

	rdb, err := redis.Open(ctx, cfg.Cache.RedisUrl)
	if err != nil {
		log.Error(ctx, "cannot connect to redis", err)
		return
	}
	contentCache := cache.NewRedisCache(rdb)

	keyStore, err := buildKeyStore(cfg)
	if err != nil {
		log.Error(ctx, "cannot build key store", err)
		return
	}

	var auditSink audit.Sink = audit.LogSink{}
	if cfg.Audit.URL != "" {
		auditSink = audit.NewHTTPSink(cfg.Audit.URL)
	}

	identityRepo := repositories.NewIdentity(storage.Pgx)
	credentialRepo := repositories.NewCredential(storage.Pgx)
	consentRepo := repositories.NewConsent(storage.Pgx)
	emergencyRepo := repositories.NewEmergency(storage.Pgx)
	staffRepo := repositories.NewStaff(storage.Pgx)
	proofRepo := repositories.NewProof(storage.Pgx)
	// record content is owned by an external collaborator; this in-memory
	// stand-in is not durable and holds only what this process put there
	contentStore := repositories.NewContentStoreInMemory()

	limiter := ratelimit.New(cfg.Policy.RateLimit, cfg.Policy.RateWindow)

	identityService := services.NewIdentity(identityRepo, keyStore, cfg.Policy.StoreTimeout)
	issuerService := services.NewIssuer(identityRepo, keyStore, cfg.Policy)
	verifierService := services.NewVerifier(credentialRepo, consentRepo, emergencyRepo, auditSink, cfg.Policy.StoreTimeout)
	consentService := services.NewConsent(consentRepo, identityService, issuerService, auditSink, cfg.Policy)
	emergencyService := services.NewEmergency(emergencyRepo, staffRepo, identityService, issuerService, auditSink, limiter, cfg.Policy)
	proofService, err := services.NewProof(ctx, proofRepo, keyStore, auditSink, limiter, cfg.Policy)
	if err != nil {
		log.Error(ctx, "cannot establish engine signing identity", err)
		return
	}

	server := api.NewServer(
		identityService,
		issuerService,
		verifierService,
		consentService,
		emergencyService,
		proofService,
		services.NewAnalyzer(),
		contentStore,
		contentCache,
		health.New(storage.Pgx, rdb),
	)

	mux := chi.NewRouter()
	mux.Use(
		middleware.RequestID,
		middleware.Recoverer,
		cors.AllowAll().Handler,
		log.ChiMiddleware(ctx),
	)
	server.Routes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info(ctx, "server started", "port", cfg.ServerPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "starting http server", err)
		}
	}()

	<-quit
	log.Info(ctx, "shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutting down http server", err)
	}
}

// buildKeyStore registers the configured Ed25519 provider: vault when an address
// is set, the local file provider otherwise.
func buildKeyStore(cfg *config.Configuration) (*kms.KMS, error) {
	var provider kms.KeyProvider
	if cfg.KeyStore.Address != "" {
		vaultCli, err := providers.NewVaultClient(cfg.KeyStore.Address, cfg.KeyStore.Token)
		if err != nil {
			return nil, err
		}
		provider = kms.NewVaultEd25519KeyProvider(vaultCli, cfg.KeyStore.MountPath)
	} else {
		var err error
		provider, err = kms.NewLocalEd25519KeyProvider(cfg.KeyStore.LocalPath)
		if err != nil {
			return nil, err
		}
	}

	keyStore := kms.NewKMS()
	if err := keyStore.RegisterKeyProvider(kms.KeyTypeEd25519, provider); err != nil {
		return nil, err
	}
	return keyStore, nil
}
