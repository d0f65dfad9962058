package configsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/configsync"
	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
	"github.com/dropDatabas3/gatejohn/internal/store/memory"
)

// flakyDomains envuelve un DomainRepository y permite inyectar fallos.
type flakyDomains struct {
	mu    sync.Mutex
	inner repository.DomainRepository
	fail  error
}

func (f *flakyDomains) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *flakyDomains) Get(ctx context.Context, id string) (*repository.Domain, error) {
	f.mu.Lock()
	err := f.fail
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.inner.Get(ctx, id)
}

func (f *flakyDomains) List(ctx context.Context) ([]repository.Domain, error) {
	f.mu.Lock()
	err := f.fail
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.inner.List(ctx)
}

func newManager(t *testing.T) (*configsync.Manager, *memory.Store, *flakyDomains) {
	t.Helper()
	store := memory.New()
	store.PutDomain(repository.Domain{ID: "dev", Name: "Dev", Enabled: true, Revision: 1})
	store.PutClient(repository.Client{ID: "c-1", DomainID: "dev", ClientID: "web", Revision: 1})

	flaky := &flakyDomains{inner: store.Domains()}
	mgr := configsync.NewManager(configsync.Config{
		Loader:          configsync.Loader{Domains: flaky, Clients: store.Clients()},
		LoadTimeout:     time.Second,
		RefreshMaxTries: 2,
	})
	return mgr, store, flaky
}

func TestWarm(t *testing.T) {
	mgr, _, _ := newManager(t)
	if err := mgr.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if st := mgr.State(configsync.EntityDomain, "dev"); st != configsync.StateReady {
		t.Fatalf("domain state: %v", st)
	}
	if st := mgr.State(configsync.EntityClient, "web"); st != configsync.StateReady {
		t.Fatalf("client state: %v", st)
	}
	if rev := mgr.Revision(configsync.EntityDomain, "dev"); rev != 1 {
		t.Fatalf("revision: %d", rev)
	}
}

func TestReadThroughOnMiss(t *testing.T) {
	mgr, _, _ := newManager(t)
	ctx := context.Background()

	// Cache frío: el primer lookup va al store y puebla el entry.
	d, err := mgr.Domain(ctx, "dev")
	if err != nil {
		t.Fatalf("domain: %v", err)
	}
	if d.Name != "Dev" {
		t.Fatalf("domain: %+v", d)
	}
	if st := mgr.State(configsync.EntityDomain, "dev"); st != configsync.StateReady {
		t.Fatalf("state after read-through: %v", st)
	}

	if _, err := mgr.Domain(ctx, "no-existe"); !errors.Is(err, configsync.ErrNotFound) {
		t.Fatalf("missing domain: %v", err)
	}
}

func TestApplyRefreshesEntry(t *testing.T) {
	mgr, store, _ := newManager(t)
	ctx := context.Background()
	if err := mgr.Warm(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}

	store.PutDomain(repository.Domain{ID: "dev", Name: "Dev v2", Enabled: true, Revision: 2})
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 2})
	mgr.Wait()

	d, err := mgr.Domain(ctx, "dev")
	if err != nil {
		t.Fatalf("domain: %v", err)
	}
	if d.Name != "Dev v2" {
		t.Fatalf("refresh did not converge: %+v", d)
	}
	if rev := mgr.Revision(configsync.EntityDomain, "dev"); rev != 2 {
		t.Fatalf("revision: %d", rev)
	}
}

// gatedDomains sirve un único Get scripteado que bloquea hasta release; el
// resto pasa directo al repositorio interno.
type gatedDomains struct {
	inner   repository.DomainRepository
	held    *repository.Domain
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	consumed bool
}

func (g *gatedDomains) Get(ctx context.Context, id string) (*repository.Domain, error) {
	g.mu.Lock()
	first := !g.consumed
	g.consumed = true
	g.mu.Unlock()
	if first {
		g.entered <- struct{}{}
		<-g.release
		return g.held, nil
	}
	return g.inner.Get(ctx, id)
}

func (g *gatedDomains) List(ctx context.Context) ([]repository.Domain, error) {
	return g.inner.List(ctx)
}

func TestApplyDuringInflightRefresh(t *testing.T) {
	store := memory.New()
	store.PutDomain(repository.Domain{ID: "dev", Name: "Dev", Enabled: true, Revision: 1})

	gated := &gatedDomains{
		inner:   store.Domains(),
		held:    &repository.Domain{ID: "dev", Name: "Dev v2", Enabled: true, Revision: 2},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	mgr := configsync.NewManager(configsync.Config{
		Loader:      configsync.Loader{Domains: gated, Clients: store.Clients()},
		LoadTimeout: time.Second,
	})
	ctx := context.Background()
	if err := mgr.Warm(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}
	store.PutDomain(repository.Domain{ID: "dev", Name: "Dev v3", Enabled: true, Revision: 3})

	// La carga de rev 2 queda en vuelo cuando llega el evento de rev 3: la
	// rev 3 necesita su propia carga, no el snapshot viejo del vuelo colapsado.
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 2})
	<-gated.entered
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 3})
	close(gated.release)
	mgr.Wait()

	d, err := mgr.Domain(ctx, "dev")
	if err != nil {
		t.Fatalf("domain: %v", err)
	}
	if d.Name != "Dev v3" || d.Revision != 3 {
		t.Fatalf("cache stuck at %q rev %d, want Dev v3 rev 3", d.Name, d.Revision)
	}
	if rev := mgr.Revision(configsync.EntityDomain, "dev"); rev != 3 {
		t.Fatalf("revision: %d", rev)
	}
	if st := mgr.State(configsync.EntityDomain, "dev"); st != configsync.StateReady {
		t.Fatalf("state: %v", st)
	}

	// La redelivery at-least-once del mismo evento no retrocede nada.
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 3})
	mgr.Wait()
	if d, _ := mgr.Domain(ctx, "dev"); d.Name != "Dev v3" {
		t.Fatalf("redelivery regressed snapshot: %+v", d)
	}
}

func TestApplyDiscardsStaleRevisions(t *testing.T) {
	mgr, store, _ := newManager(t)
	ctx := context.Background()

	store.PutDomain(repository.Domain{ID: "dev", Name: "Dev v5", Enabled: true, Revision: 5})
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 5})
	mgr.Wait()

	// Un evento viejo que llega tarde no pisa la revisión cacheada.
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 3})
	mgr.Wait()
	if rev := mgr.Revision(configsync.EntityDomain, "dev"); rev != 5 {
		t.Fatalf("stale revision applied: %d", rev)
	}

	// Tampoco un duplicado exacto.
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 5})
	mgr.Wait()
	if rev := mgr.Revision(configsync.EntityDomain, "dev"); rev != 5 {
		t.Fatalf("duplicate bumped revision: %d", rev)
	}
}

func TestDeleteTombstoneFailsClosed(t *testing.T) {
	mgr, _, _ := newManager(t)
	ctx := context.Background()
	if err := mgr.Warm(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}

	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpDelete, ID: "dev", Revision: 2})

	if _, err := mgr.Domain(ctx, "dev"); !errors.Is(err, configsync.ErrRemoved) {
		t.Fatalf("removed domain served: %v", err)
	}
	if st := mgr.State(configsync.EntityDomain, "dev"); st != configsync.StateRemoved {
		t.Fatalf("state: %v", st)
	}

	// Un update tardío con revisión vieja no resucita el tombstone.
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 1})
	mgr.Wait()
	if _, err := mgr.Domain(ctx, "dev"); !errors.Is(err, configsync.ErrRemoved) {
		t.Fatalf("tombstone resurrected: %v", err)
	}
}

func TestRefreshNotFoundTombstones(t *testing.T) {
	mgr, store, _ := newManager(t)
	ctx := context.Background()
	if err := mgr.Warm(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}

	// El dominio desaparece del store antes de que el refresh corra:
	// el evento update termina en tombstone, no en stale-forever.
	store.DeleteDomain("dev")
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 2})
	mgr.Wait()

	if _, err := mgr.Domain(ctx, "dev"); !errors.Is(err, configsync.ErrRemoved) {
		t.Fatalf("expected fail-closed removal, got %v", err)
	}
}

func TestRefreshFailureServesLastKnownGood(t *testing.T) {
	mgr, store, flaky := newManager(t)
	ctx := context.Background()
	if err := mgr.Warm(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}

	store.PutDomain(repository.Domain{ID: "dev", Name: "Dev v2", Enabled: true, Revision: 2})
	flaky.setFail(errors.New("store down"))
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 2})
	mgr.Wait()

	// El refresh agotó reintentos: el entry queda STALE sirviendo el valor
	// anterior en vez de tumbar requests.
	d, err := mgr.Domain(ctx, "dev")
	if err != nil {
		t.Fatalf("stale entry not served: %v", err)
	}
	if d.Name != "Dev" {
		t.Fatalf("unexpected value: %+v", d)
	}
	if st := mgr.State(configsync.EntityDomain, "dev"); st != configsync.StateStale {
		t.Fatalf("state: %v", st)
	}

	// El store vuelve y el siguiente evento converge.
	flaky.setFail(nil)
	mgr.Apply(ctx, configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 3})
	mgr.Wait()
	d, err = mgr.Domain(ctx, "dev")
	if err != nil {
		t.Fatalf("domain: %v", err)
	}
	if d.Name != "Dev v2" {
		t.Fatalf("did not converge: %+v", d)
	}
}

func TestRunConsumesSource(t *testing.T) {
	mgr, store, _ := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := configsync.NewChanSource(4)
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx, src)
		close(done)
	}()

	store.PutDomain(repository.Domain{ID: "dev", Name: "Dev v2", Enabled: true, Revision: 2})
	src.Publish(configsync.Event{Entity: configsync.EntityDomain, Op: configsync.OpUpdate, ID: "dev", Revision: 2})
	// Evento malformado: se descarta sin tumbar el loop.
	src.Publish(configsync.Event{Entity: "nope", Op: configsync.OpUpdate, ID: "x", Revision: 1})

	deadline := time.After(2 * time.Second)
	for {
		if mgr.Revision(configsync.EntityDomain, "dev") == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("event not applied")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}
