package configsync

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dropDatabas3/gatejohn/internal/audit"
	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/metrics"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
	"golang.org/x/sync/singleflight"
)

// EntryState es el estado de una entidad cacheada.
type EntryState int

const (
	StateAbsent EntryState = iota
	StateLoading
	StateReady
	StateStale
	StateRemoved
)

var (
	// ErrRemoved indica que la entidad fue borrada por el management plane.
	// Los lookups posteriores fallan cerrado aunque el refresh no haya corrido.
	ErrRemoved = errors.New("configsync: entity removed")

	// ErrNotFound indica que la entidad no existe en el authoritative store.
	ErrNotFound = errors.New("configsync: entity not found")
)

// Loader lee del authoritative store del management plane.
type Loader struct {
	Domains repository.DomainRepository
	Clients repository.ClientRepository
}

// Config del manager.
type Config struct {
	Loader Loader

	// LoadTimeout acota cada llamada al store. Default 3s.
	LoadTimeout time.Duration

	// RefreshMaxTries acota los reintentos de un refresh antes de dejar el
	// entry en STALE y esperar el próximo evento. Default 5.
	RefreshMaxTries uint
}

type entry struct {
	state    EntryState
	revision int64
	domain   *repository.Domain
	client   *repository.Client
}

// Manager es el Domain Sync Manager: cache read-mostly de dominios/clients,
// refrescado por eventos. Seguro para uso concurrente.
type Manager struct {
	loader   Loader
	timeout  time.Duration
	maxTries uint

	mu      sync.RWMutex
	entries map[string]*entry

	sf singleflight.Group
	wg sync.WaitGroup
}

// NewManager crea el manager con el cache vacío. Se puebla lazy (read-through
// en miss) o eager (Warm / eventos).
func NewManager(cfg Config) *Manager {
	timeout := cfg.LoadTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	tries := cfg.RefreshMaxTries
	if tries == 0 {
		tries = 5
	}
	return &Manager{
		loader:   cfg.Loader,
		timeout:  timeout,
		maxTries: tries,
		entries:  make(map[string]*entry),
	}
}

// Run consume eventos del source hasta que el contexto termine.
// Corre en un task propio, independiente de los requests.
func (m *Manager) Run(ctx context.Context, src Source) {
	log := logger.Named("configsync")
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return
		case ev, ok := <-src.Events():
			if !ok {
				m.wg.Wait()
				return
			}
			if err := ev.Valid(); err != nil {
				log.Warn("discarding malformed sync event", logger.Err(err))
				continue
			}
			m.Apply(ctx, ev)
		}
	}
}

// Apply procesa un evento. Idempotente y tolerante a reordenamiento: eventos
// con revisión menor o igual a la cacheada se descartan.
func (m *Manager) Apply(ctx context.Context, ev Event) {
	log := logger.Named("configsync")
	key := ev.key()

	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{state: StateAbsent}
		m.entries[key] = e
	}
	if ev.Revision <= e.revision && e.state != StateAbsent {
		m.mu.Unlock()
		metrics.SyncEventsDiscarded.Inc()
		return
	}
	e.revision = ev.Revision

	if ev.Op == OpDelete {
		// Los deletes nunca se sirven stale: tombstone inmediato.
		e.state = StateRemoved
		e.domain = nil
		e.client = nil
		m.mu.Unlock()
		metrics.SyncEventsApplied.WithLabelValues(string(ev.Entity), string(ev.Op)).Inc()
		audit.Log(ctx, audit.EventSyncRemoved, map[string]any{
			"entity":   string(ev.Entity),
			"id":       ev.ID,
			"revision": ev.Revision,
		})
		log.Info("entity removed", logger.String("entity", string(ev.Entity)), logger.String("id", ev.ID), logger.Revision(ev.Revision))
		return
	}

	// create/update: el último valor bueno sigue sirviendo lecturas mientras
	// el refresh eager converge.
	if e.state == StateReady || e.state == StateStale {
		e.state = StateStale
	} else {
		e.state = StateLoading
	}
	m.mu.Unlock()

	metrics.SyncEventsApplied.WithLabelValues(string(ev.Entity), string(ev.Op)).Inc()
	audit.Log(ctx, audit.EventSyncApplied, map[string]any{
		"entity":   string(ev.Entity),
		"id":       ev.ID,
		"op":       string(ev.Op),
		"revision": ev.Revision,
	})
	m.scheduleRefresh(ctx, ev.Entity, ev.ID, ev.Revision)
}

func (m *Manager) scheduleRefresh(ctx context.Context, entity EntityType, id string, rev int64) {
	key := string(entity) + ":" + id
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// singleflight colapsa redeliveries del mismo evento. La revisión va
		// en la key: un evento más nuevo que llega con un refresh viejo en
		// vuelo necesita su propia carga, no el snapshot viejo.
		_, _, _ = m.sf.Do("refresh:"+key+":"+strconv.FormatInt(rev, 10), func() (any, error) {
			m.refresh(ctx, entity, id, rev)
			return nil, nil
		})
	}()
}

// refresh recarga la entidad del store con backoff exponencial. Un fallo
// persistente deja el entry en STALE sirviendo el último valor bueno; nunca
// tumba requests en vuelo.
func (m *Manager) refresh(ctx context.Context, entity EntityType, id string, rev int64) {
	log := logger.Named("configsync")
	start := time.Now()

	operation := func() (any, error) {
		lctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		switch entity {
		case EntityDomain:
			d, err := m.loader.Domains.Get(lctx, id)
			if err != nil {
				if repository.IsNotFound(err) {
					return nil, backoff.Permanent(err)
				}
				return nil, err
			}
			return d, nil
		default:
			c, err := m.loader.Clients.Get(lctx, id)
			if err != nil {
				if repository.IsNotFound(err) {
					return nil, backoff.Permanent(err)
				}
				return nil, err
			}
			return c, nil
		}
	}

	loaded, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(m.maxTries),
	)
	metrics.SyncRefreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if repository.IsNotFound(err) {
			// Borrada entre el evento y el refresh: fail closed.
			m.tombstone(entity, id, rev)
			return
		}
		metrics.SyncRefreshFailures.Inc()
		log.Warn("refresh failed, serving last-known-good",
			logger.String("entity", string(entity)), logger.String("id", id), logger.Err(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(entity) + ":" + id
	e, ok := m.entries[key]
	if !ok || e.state == StateRemoved {
		// Un delete llegó durante el refresh: no resucitar.
		return
	}
	// Dos refreshes de la misma entidad pueden completar fuera de orden: un
	// snapshot nunca pisa uno más nuevo, y el entry sólo queda READY cuando
	// el snapshot cubre la última revisión anunciada por eventos.
	var snapRev int64
	switch v := loaded.(type) {
	case *repository.Domain:
		if e.domain == nil || v.Revision >= e.domain.Revision {
			e.domain = v
		}
		if v.Revision > e.revision {
			e.revision = v.Revision
		}
		snapRev = e.domain.Revision
	case *repository.Client:
		if e.client == nil || v.Revision >= e.client.Revision {
			e.client = v
		}
		if v.Revision > e.revision {
			e.revision = v.Revision
		}
		snapRev = e.client.Revision
	}
	if snapRev >= e.revision {
		e.state = StateReady
	} else {
		e.state = StateStale
	}
}

func (m *Manager) tombstone(entity EntityType, id string, rev int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(entity) + ":" + id
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.state = StateRemoved
	e.domain = nil
	e.client = nil
	if rev > e.revision {
		e.revision = rev
	}
}

// Domain resuelve un dominio: cache hit (READY o STALE) sin tocar red;
// REMOVED falla cerrado; miss hace read-through con singleflight.
func (m *Manager) Domain(ctx context.Context, id string) (*repository.Domain, error) {
	key := string(EntityDomain) + ":" + id

	m.mu.RLock()
	if e, ok := m.entries[key]; ok {
		switch {
		case e.state == StateRemoved:
			m.mu.RUnlock()
			return nil, ErrRemoved
		case e.domain != nil:
			d := *e.domain
			m.mu.RUnlock()
			return &d, nil
		}
	}
	m.mu.RUnlock()

	v, err, _ := m.sf.Do("load:"+key, func() (any, error) {
		lctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return m.loader.Domains.Get(lctx, id)
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d := v.(*repository.Domain)
	m.store(key, func(e *entry) { e.domain = d; e.state = StateReady; maxRev(e, d.Revision) })
	out := *d
	return &out, nil
}

// Client resuelve un client con la misma disciplina que Domain.
func (m *Manager) Client(ctx context.Context, clientID string) (*repository.Client, error) {
	key := string(EntityClient) + ":" + clientID

	m.mu.RLock()
	if e, ok := m.entries[key]; ok {
		switch {
		case e.state == StateRemoved:
			m.mu.RUnlock()
			return nil, ErrRemoved
		case e.client != nil:
			c := *e.client
			m.mu.RUnlock()
			return &c, nil
		}
	}
	m.mu.RUnlock()

	v, err, _ := m.sf.Do("load:"+key, func() (any, error) {
		lctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return m.loader.Clients.Get(lctx, clientID)
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c := v.(*repository.Client)
	m.store(key, func(e *entry) { e.client = c; e.state = StateReady; maxRev(e, c.Revision) })
	out := *c
	return &out, nil
}

func (m *Manager) store(key string, fn func(*entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	if e.state == StateRemoved {
		// No resucitar tombstones desde un read-through tardío.
		return
	}
	fn(e)
}

func maxRev(e *entry, rev int64) {
	if rev > e.revision {
		e.revision = rev
	}
}

// Warm precarga todos los dominios y clients del authoritative store
// (cold start). Un fallo acá no es fatal: el cache se puebla lazy después.
func (m *Manager) Warm(ctx context.Context) error {
	lctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	domains, err := m.loader.Domains.List(lctx)
	if err != nil {
		return err
	}
	for i := range domains {
		d := domains[i]
		m.store(string(EntityDomain)+":"+d.ID, func(e *entry) {
			e.domain = &d
			e.state = StateReady
			maxRev(e, d.Revision)
		})
		clients, err := m.loader.Clients.ListByDomain(lctx, d.ID)
		if err != nil {
			return err
		}
		for j := range clients {
			c := clients[j]
			m.store(string(EntityClient)+":"+c.ClientID, func(e *entry) {
				e.client = &c
				e.state = StateReady
				maxRev(e, c.Revision)
			})
		}
	}
	logger.Named("configsync").Info("cache warmed", logger.Count(len(domains)))
	return nil
}

// State expone el estado de un entry (tests y endpoint de salud).
func (m *Manager) State(entity EntityType, id string) EntryState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[string(entity)+":"+id]; ok {
		return e.state
	}
	return StateAbsent
}

// Revision expone la revisión cacheada de un entry.
func (m *Manager) Revision(entity EntityType, id string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[string(entity)+":"+id]; ok {
		return e.revision
	}
	return 0
}

// Wait bloquea hasta que los refresh en vuelo terminen (tests).
func (m *Manager) Wait() { m.wg.Wait() }
