package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/gatejohn/internal/cache"
	"github.com/dropDatabas3/gatejohn/internal/config"
	"github.com/dropDatabas3/gatejohn/internal/configsync"
	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/httpapi"
	"github.com/dropDatabas3/gatejohn/internal/idp"
	"github.com/dropDatabas3/gatejohn/internal/jwt"
	"github.com/dropDatabas3/gatejohn/internal/metrics"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/authcode"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/clientauth"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/granter"
	"github.com/dropDatabas3/gatejohn/internal/oauth2/token"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
	"github.com/dropDatabas3/gatejohn/internal/rate"
	"github.com/dropDatabas3/gatejohn/internal/store/memory"
	"github.com/dropDatabas3/gatejohn/internal/store/pg"
	redisstore "github.com/dropDatabas3/gatejohn/internal/store/redis"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		ServiceName: "gatejohn",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()

	if err := metrics.Register(nil); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── storage ──
	var (
		domains  repository.DomainRepository
		clients  repository.ClientRepository
		codes    repository.CodeRepository
		tokens   repository.TokenRepository
		consents repository.ConsentRepository
		ready    = func(context.Context) error { return nil }
	)
	switch cfg.Storage.Driver {
	case "postgres":
		ps, err := pg.New(ctx, cfg.Storage.DSN, int32(cfg.Storage.Postgres.MaxConns),
			config.Dur(cfg.Storage.Postgres.ConnMaxLifetime))
		if err != nil {
			return err
		}
		defer ps.Close()
		domains, clients = ps.Domains(), ps.Clients()
		codes, tokens, consents = ps.Codes(), ps.Tokens(), ps.Consents()
		ready = ps.Ping
	default:
		ms := memory.New()
		domains, clients = ms.Domains(), ms.Clients()
		codes, tokens, consents = ms.Codes(), ms.Tokens(), ms.Consents()
		logger.L().Warn("storage driver memory: data will not survive a restart")
	}

	// ── cache / redis ──
	var (
		cacheClient cache.Client
		rdb         *redis.Client
	)
	if cfg.Cache.Kind == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		cacheClient = cache.NewRedisWith(rdb, cfg.Cache.Redis.Prefix)
		// Codes are short-lived: redis keeps them off the relational store
		// and the TTL purge comes free.
		codes = redisstore.NewCodeStore(rdb)
	} else {
		cacheClient = cache.NewMemory(cfg.Cache.Redis.Prefix)
	}
	defer func() { _ = cacheClient.Close() }()

	// ── config sync ──
	mgr := configsync.NewManager(configsync.Config{
		Loader:          configsync.Loader{Domains: domains, Clients: clients},
		LoadTimeout:     config.Dur(cfg.Sync.LoadTimeout),
		RefreshMaxTries: uint(cfg.Sync.RefreshRetries),
	})
	if err := mgr.Warm(ctx); err != nil {
		logger.L().Warn("cache warm failed, falling back to lazy loads", logger.Err(err))
	}
	var src configsync.Source
	if cfg.Sync.Source == "redis" {
		// El source puede ir por redis aunque el cache sea in-process: en ese
		// caso el suscriptor necesita su propia conexión.
		srcRdb := rdb
		if srcRdb == nil {
			srcRdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			})
			defer func() { _ = srcRdb.Close() }()
		}
		src = configsync.NewRedisSource(srcRdb, cfg.Sync.Channel)
	} else {
		src = configsync.NewChanSource(64)
	}
	defer func() { _ = src.Close() }()
	go mgr.Run(ctx, src)

	// ── signing keys ──
	ks, err := jwt.NewKeystore()
	if err != nil {
		return err
	}
	issuer := jwt.NewIssuer(cfg.Server.PublicURL, ks)
	if interval := config.Dur(cfg.Issuer.KeyRotationInterval); interval > 0 {
		grace := time.Duration(cfg.Issuer.KeyRotationGraceSeconds) * time.Second
		go rotateKeys(ctx, ks, interval, grace)
	}

	// ── services ──
	tokenURL := strings.TrimRight(cfg.Server.PublicURL, "/") + "/oauth/token"
	auth := clientauth.New(cacheClient, tokenURL)
	tokSvc := token.NewService(token.Deps{
		Tokens:            tokens,
		Denylist:          cacheClient,
		Issuer:            issuer,
		DefaultIssuerMode: cfg.Issuer.Mode,
	})

	idps := idp.NewRegistry()
	idps.Register("local", idp.NewLocalProvider())

	disp := granter.New(granter.Deps{
		Sync:     mgr,
		Auth:     auth,
		Codes:    authcode.NewStore(codes),
		Tokens:   tokSvc,
		Consents: consents,
		IDPs:     idps,
		TokenURL: tokenURL,
	})

	// ── http ──
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		window := config.Dur(cfg.Rate.Token.Window)
		if rdb != nil {
			limiter = rate.NewRedisLimiter(rdb, "rl:", cfg.Rate.Token.Limit, window)
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.Token.Limit, window)
		}
	}
	handlers := &httpapi.Handlers{
		Granter: disp,
		Tokens:  tokSvc,
		Auth:    auth,
		Sync:    mgr,
		Keys:    ks,
		Ready: func(ctx context.Context) error {
			if err := ready(ctx); err != nil {
				return err
			}
			return cacheClient.Ping(ctx)
		},
	}
	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     config.Dur(cfg.Server.ReadTimeout),
		WriteTimeout:    config.Dur(cfg.Server.WriteTimeout),
		ShutdownTimeout: config.Dur(cfg.Server.ShutdownTimeout),
	}, httpapi.NewRouter(handlers, httpapi.RouterConfig{Limiter: limiter}))

	err = srv.Run(ctx)
	mgr.Wait()
	return err
}

// rotateKeys rota la clave de firma activa con la cadencia configurada y
// retira las claves en retiring una vez pasada la gracia. Las claves en
// gracia siguen verificando tokens firmados antes de la rotación.
func rotateKeys(ctx context.Context, ks *jwt.Keystore, interval, grace time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			kid, err := ks.Rotate()
			if err != nil {
				logger.L().Error("signing key rotation failed", logger.Err(err))
				continue
			}
			ks.Retire(grace)
			logger.L().Info("signing key rotated", logger.String("kid", kid))
		}
	}
}
