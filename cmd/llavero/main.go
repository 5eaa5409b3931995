package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dropDatabas3/llavero/internal/cache"
	"github.com/dropDatabas3/llavero/internal/config"
	llhttp "github.com/dropDatabas3/llavero/internal/http"
	oauthctl "github.com/dropDatabas3/llavero/internal/http/controllers/oauth"
	oidcctl "github.com/dropDatabas3/llavero/internal/http/controllers/oidc"
	oauthsvc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
	"github.com/dropDatabas3/llavero/internal/rate"
	"github.com/dropDatabas3/llavero/internal/store"
	_ "github.com/dropDatabas3/llavero/internal/store/adapters/dal"

	"github.com/dropDatabas3/llavero/internal/audit"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "ruta del config YAML")
	flag.Parse()

	// .env es opcional: sólo para desarrollo local.
	_ = godotenv.Load()

	// Si el YAML no existe arrancamos sólo con env/defaults.
	if _, err := os.Stat(configPath); err != nil {
		configPath = ""
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		// logger aún no inicializado
		panic("config: " + err.Error())
	}

	logEnv := cfg.App.Env
	if cfg.Log.Dev {
		logEnv = "dev"
	}
	logger.Init(logger.Config{Env: logEnv, Level: cfg.Log.Level})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	dal, err := store.New(ctx, store.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		log.Fatal("no se pudo inicializar el storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer dal.Close()

	// Cache (sesiones)
	cacheClient, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Kind,
		Host:     cfg.Cache.Redis.Host,
		Port:     cfg.Cache.Redis.Port,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		log.Fatal("no se pudo inicializar la cache", zap.String("kind", cfg.Cache.Kind), zap.Error(err))
	}
	defer func() { _ = cacheClient.Close() }()

	// Claves de firma: FS si hay keys_file, memoria en caso contrario.
	var keyStore jwtx.SigningKeyStore
	if cfg.JWT.KeysFile != "" {
		keyStore = jwtx.NewFSSigningKeyStore(cfg.JWT.KeysFile)
	} else {
		log.Warn("jwt.keys_file no configurado: las claves de firma viven sólo en memoria")
		keyStore = jwtx.NewMemorySigningKeyStore()
	}
	keystore := jwtx.NewKeystore(ctx, keyStore)
	if err := keystore.EnsureBootstrap(); err != nil {
		log.Fatal("no se pudo asegurar una clave de firma activa", zap.Error(err))
	}

	issuer := jwtx.NewIssuer(cfg.JWT.Issuer, cfg.JWT.Audience, keystore)
	issuer.AccessTTL = config.Duration(cfg.JWT.AccessTTL)
	issuer.RefreshTTL = config.Duration(cfg.JWT.RefreshTTL)
	issuer.IDTokenTTL = config.Duration(cfg.JWT.IDTokenTTL)

	// Services
	services := oauthsvc.NewServices(oauthsvc.Deps{
		DAL:               dal,
		Issuer:            issuer,
		Cache:             cacheClient,
		Audit:             audit.NewZapSink(),
		CookieName:        cfg.Auth.Session.CookieName,
		UIBaseURL:         cfg.Server.UIBaseURL,
		MaxSecretVerifies: int64(cfg.Auth.MaxSecretVerifies),
	})

	// Rate limiting en /oauth/token y /oauth/revoke
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		window := config.Duration(cfg.Rate.Token.Window)
		limiter = buildLimiter(cacheClient, cfg.Rate.Token.Limit, window)
		log.Info("rate limiting habilitado",
			zap.Int("limit", cfg.Rate.Token.Limit),
			zap.Duration("window", window))
	}

	handler, err := llhttp.NewRouter(llhttp.RouterDeps{
		Authorize:   oauthctl.NewAuthorizeController(services.Authorize),
		Token:       oauthctl.NewTokenController(services.Token),
		Revoke:      oauthctl.NewRevokeController(services.Revoke),
		Introspect:  oauthctl.NewIntrospectController(services.Introspect),
		Consent:     oauthctl.NewConsentController(services.Consent, dal.Clients, cacheClient, cfg.Auth.Session.CookieName),
		OIDC:        oidcctl.New(issuer, services.UserInfo, oauthsvc.NewScopeDirectory(dal.Scopes), cfg.Server.BaseURL),
		Limiter:     limiter,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		Ready:       cacheClient.Ping,
	})
	if err != nil {
		log.Fatal("no se pudo armar el router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		log.Info("llavero escuchando",
			zap.String("addr", cfg.Server.Addr),
			zap.String("issuer", cfg.JWT.Issuer),
			zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("apagando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown forzado", zap.Error(err))
	}
	log.Info("bye")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// buildLimiter elige Redis cuando la cache corre sobre Redis; si no, usa la
// ventana en memoria (válida para una sola instancia).
func buildLimiter(c cache.Client, limit int, window time.Duration) rate.Limiter {
	if rc, ok := c.(cache.RedisRawer); ok {
		return rate.NewRedisLimiter(rc.Raw(), "rl:", limit, window)
	}
	return rate.NewMemoryLimiter(limit, window)
}
