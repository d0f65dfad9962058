// Package redisstore implementa el repositorio de authorization codes sobre
// Redis. El TTL del código lo aplica Redis (EXPIRE) y el consumo one-shot se
// apoya en GETDEL: leer y destruir es un solo comando, así que bajo N
// redenciones concurrentes exactamente una recibe el payload.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/redis/go-redis/v9"
)

const codePrefix = "authcode:"

// CodeStore implementa repository.CodeRepository.
type CodeStore struct {
	rdb *redis.Client
}

// NewCodeStore crea el store sobre un cliente Redis existente.
func NewCodeStore(rdb *redis.Client) *CodeStore {
	return &CodeStore{rdb: rdb}
}

func (s *CodeStore) Put(ctx context.Context, code *repository.AuthorizationCode) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return err
	}
	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return repository.ErrInvalidInput
	}
	ok, err := s.rdb.SetNX(ctx, codePrefix+code.CodeHash, payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrConflict
	}
	return nil
}

// Consume destruye y retorna el código en un solo paso. Un código ya
// consumido es indistinguible de uno inexistente (ambos ErrNotFound); el
// caller los colapsa igualmente en invalid_grant.
func (s *CodeStore) Consume(ctx context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	payload, err := s.rdb.GetDel(ctx, codePrefix+codeHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	var code repository.AuthorizationCode
	if err := json.Unmarshal(payload, &code); err != nil {
		return nil, err
	}
	code.Consumed = true
	return &code, nil
}

func (s *CodeStore) Delete(ctx context.Context, codeHash string) error {
	return s.rdb.Del(ctx, codePrefix+codeHash).Err()
}
