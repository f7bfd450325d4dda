/*
Copyright © 2023 OpenTDF opentdf@virtru.com
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opentdf/kas/api"
	mwauth "github.com/opentdf/kas/api/middleware/auth"
	"github.com/opentdf/kas/internal/auth"
	"github.com/opentdf/kas/internal/config"
	kascrypto "github.com/opentdf/kas/internal/crypto"
	"github.com/opentdf/kas/internal/db"
	"github.com/opentdf/kas/pkg/access"
	"github.com/opentdf/kas/plugins"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Key Access Service",
	Run:   start,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func start(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		zap.S().Fatalw("could not load configuration",
			"error", errors.Join(access.ErrServerStartup, err))
	}
	logger := newLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jwksURL := cfg.IDP.JWKSURL
	if jwksURL == "" && cfg.IDP.Issuer != "" {
		if jwksURL, err = mwauth.DiscoverJWKSURL(ctx, cfg.IDP.Issuer); err != nil {
			sugar.Fatalw("could not discover idp jwks endpoint",
				"error", errors.Join(access.ErrServerStartup, err))
		}
	}
	var keyset jwk.Set
	if jwksURL != "" {
		if keyset, err = mwauth.JWKSKeySet(ctx, jwksURL); err != nil {
			sugar.Fatalw("could not start jwks cache",
				"error", errors.Join(access.ErrServerStartup, err))
		}
	}

	provider, probers, err := buildProvider(ctx, cfg, keyset, sugar)
	if err != nil {
		sugar.Fatalw("could not build service",
			"error", errors.Join(access.ErrServerStartup, err))
	}

	var authGate func(http.Handler) http.Handler
	if keyset != nil {
		authGate = mwauth.OidcAuth(keyset, sugar)
	}
	r := chi.NewRouter()
	r.Mount("/", api.LoadKASRoutes(provider, authGate, probers...))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout() + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sugar.Infow("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Fatalw("server shutdown failed", "error", err)
	}
	sugar.Info("server stopped gracefully")
}

func buildProvider(ctx context.Context, cfg *config.Config, keyset jwk.Set, sugar *zap.SugaredLogger) (*access.Provider, []access.HealthProber, error) {
	keys := access.NewKeyStore()
	if err := keys.AddPrivateKeyFile("kas-rsa", cfg.Keys.PrivateKeyPath); err != nil {
		return nil, nil, err
	}
	if cfg.Keys.CertificatePath != "" {
		if err := keys.AddCertificateFile("kas-rsa", cfg.Keys.CertificatePath); err != nil {
			return nil, nil, err
		}
	}
	if cfg.Keys.ECPrivateKeyPath != "" {
		if err := keys.AddPrivateKeyFile("kas-ec", cfg.Keys.ECPrivateKeyPath); err != nil {
			return nil, nil, err
		}
	}

	tokenOptions, err := tokenOptions(cfg.IDP, keyset)
	if err != nil {
		return nil, nil, err
	}

	credentials := &auth.ClientCredentials{
		CACertPath:     cfg.Authority.CACertPath,
		ClientCertPath: cfg.Authority.ClientCertPath,
		ClientKeyPath:  cfg.Authority.ClientKeyPath,
		TokenURL:       cfg.Authority.TokenURL,
		ClientID:       cfg.Authority.ClientID,
		ClientSecret:   cfg.Authority.ClientSecret,
	}
	authorityClient, err := credentials.Client(ctx)
	if err != nil {
		return nil, nil, err
	}
	fetcher := access.NewAuthorityFetcher(cfg.Authority.URL, authorityClient)
	registry := access.NewRegistry(fetcher, cfg.Authority.CacheTTL(), sugar)
	registry.SetFetchTimeout(cfg.Authority.FetchTimeout())

	provider := access.NewProvider(sugar, keys, registry)
	provider.TokenOptions = tokenOptions
	provider.RequestDeadline = cfg.Server.RequestTimeout()

	audit := &plugins.Audit{Logger: sugar}
	rewrapPlugins := []interface{}{audit}
	upsertPlugins := []interface{}{audit}
	var probers []access.HealthProber
	if cfg.DB.URL != "" {
		dbClient, err := db.NewClient(ctx, cfg.DB.URL)
		if err != nil {
			return nil, nil, err
		}
		if err := dbClient.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		store := &plugins.PolicyStore{DB: dbClient}
		upsertPlugins = append(upsertPlugins, store)
		probers = append(probers, store)
	}
	if provider.RewrapPlugins, err = access.NewRewrapRunner(rewrapPlugins...); err != nil {
		return nil, nil, err
	}
	if provider.UpsertPlugins, err = access.NewUpsertRunner(upsertPlugins...); err != nil {
		return nil, nil, err
	}
	return provider, probers, nil
}

// tokenOptions picks the identity-token verification source: a JWKS
// keyset, a static PEM, or none when an upstream boundary already
// verified the token.
func tokenOptions(idp config.IDP, keyset jwk.Set) ([]jwt.ParseOption, error) {
	switch {
	case idp.AllowUnverified:
		return []jwt.ParseOption{jwt.WithVerify(false), jwt.WithValidate(false)}, nil
	case keyset != nil:
		return []jwt.ParseOption{jwt.WithKeySet(keyset)}, nil
	default:
		pemBytes, err := os.ReadFile(idp.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		pub, err := kascrypto.ParsePublicKey(pemBytes)
		if err != nil {
			return nil, err
		}
		return []jwt.ParseOption{jwt.WithKey(jwa.RS256, pub)}, nil
	}
}

func newLogger(cfg config.Logging) *zap.Logger {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zapCfg.Level = level
	}
	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
