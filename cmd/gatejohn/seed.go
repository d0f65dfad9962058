package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/gatejohn/internal/config"
	"github.com/dropDatabas3/gatejohn/internal/configsync"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
	"github.com/dropDatabas3/gatejohn/internal/security/password"
)

// seed inserta un dominio dev con un client confidencial y uno público.
// Pensado para entornos locales; en producción el management plane es el
// único escritor de esta configuración.
func newSeedCmd() *cobra.Command {
	var clientSecret string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a development domain and clients into postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), clientSecret)
		},
	}
	cmd.Flags().StringVar(&clientSecret, "client-secret", "dev-secret", "secret for the confidential client")
	return cmd
}

func runSeed(ctx context.Context, clientSecret string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("seed: storage driver is %q, seed targets postgres", cfg.Storage.Driver)
	}
	logger.Init(logger.Config{Env: cfg.App.Env, ServiceName: "gatejohn-seed"})
	log := logger.L()

	pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	secretHash, err := password.Hash(password.Default, clientSecret)
	if err != nil {
		return err
	}

	const domainSQL = `
		INSERT INTO domains (id, name, enabled, grant_types, scopes, rotate_refresh, issuer_mode)
		VALUES ('dev', 'Development', true,
			'{authorization_code,refresh_token,client_credentials,password}',
			'{openid,profile,email,api:read,api:write}',
			true, 'path')
		ON CONFLICT (id) DO UPDATE SET updated_at=NOW(), revision=domains.revision+1`
	if _, err := pool.Exec(ctx, domainSQL); err != nil {
		return err
	}

	const confidentialSQL = `
		INSERT INTO clients (id, domain_id, client_id, name, auth_method, secret_hash,
			grant_types, scopes, redirect_uris)
		VALUES ('dev-web', 'dev', 'dev-web', 'Dev Web App', 'client_secret_basic', $1,
			'{authorization_code,refresh_token,client_credentials,password}',
			'{openid,profile,email,api:read,api:write}',
			'{http://localhost:3000/callback}')
		ON CONFLICT (client_id) DO UPDATE SET secret_hash=$1, updated_at=NOW(), revision=clients.revision+1`
	if _, err := pool.Exec(ctx, confidentialSQL, secretHash); err != nil {
		return err
	}

	const publicSQL = `
		INSERT INTO clients (id, domain_id, client_id, name, auth_method,
			grant_types, scopes, redirect_uris)
		VALUES ('dev-spa', 'dev', 'dev-spa', 'Dev SPA', 'none',
			'{authorization_code,refresh_token}',
			'{openid,profile,api:read}',
			'{http://localhost:3000/callback}')
		ON CONFLICT (client_id) DO UPDATE SET updated_at=NOW(), revision=clients.revision+1`
	if _, err := pool.Exec(ctx, publicSQL); err != nil {
		return err
	}

	// Con sync por redis, avisamos a los gateways corriendo; sin eso, el
	// próximo Warm los levanta.
	if cfg.Sync.Source == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		events := []configsync.Event{
			{Entity: configsync.EntityDomain, ID: "dev", Op: configsync.OpUpdate, Revision: nextRev(ctx, pool, "domains", "id", "dev")},
			{Entity: configsync.EntityClient, ID: "dev-web", Op: configsync.OpUpdate, Revision: nextRev(ctx, pool, "clients", "client_id", "dev-web")},
			{Entity: configsync.EntityClient, ID: "dev-spa", Op: configsync.OpUpdate, Revision: nextRev(ctx, pool, "clients", "client_id", "dev-spa")},
		}
		for _, ev := range events {
			if err := configsync.PublishRedis(ctx, rdb, cfg.Sync.Channel, ev); err != nil {
				log.Warn("sync publish failed", logger.Err(err))
			}
		}
	}

	log.Info("seed complete",
		logger.DomainID("dev"),
		logger.String("confidential_client", "dev-web"),
		logger.String("public_client", "dev-spa"),
	)
	return nil
}

func nextRev(ctx context.Context, pool *pgxpool.Pool, table, col, id string) int64 {
	var rev int64
	q := fmt.Sprintf(`SELECT revision FROM %s WHERE %s=$1`, table, col)
	if err := pool.QueryRow(ctx, q, id).Scan(&rev); err != nil {
		return 1
	}
	return rev
}
