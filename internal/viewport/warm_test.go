package viewport

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/keys"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/snapshot"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/listings"
)

func newMirror(t *testing.T, c *clock) (snapshot.Mirror, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return snapshot.NewRedisMirror(cli, "test", 300*time.Second, snapshot.WithClock(c.now)), mr
}

func TestSnapshot_MirrorWarmAndInvalidate(t *testing.T) {
	c := &clock{t: t0}
	mirror, mr := newMirror(t, c)
	p := &countingProvider{ads: []listings.RawAd{raw("h1", 0.5, 0.5, 1)}}

	first, err := New(Options{Provider: p, TTL: 300 * time.Second, Now: c.now, Snapshot: mirror})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := model.Region{North: 0.6, South: 0.4, East: 0.6, West: 0.4}
	if _, err := first.GetFilteredData(context.Background(), req, model.FilterCriteria{}); err != nil {
		t.Fatalf("GetFilteredData: %v", err)
	}
	if !mr.Exists(keys.Snapshot("test")) {
		t.Fatal("installed entry was not mirrored")
	}

	// a second instance starts a minute later and warms from the snapshot
	c.set(t0.Add(time.Minute))
	second, err := New(Options{Provider: p, TTL: 300 * time.Second, Now: c.now, Snapshot: mirror})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err := second.Warm(context.Background())
	if err != nil || !ok {
		t.Fatalf("Warm ok=%v err=%v", ok, err)
	}
	view, err := second.GetFilteredData(context.Background(), req, model.FilterCriteria{})
	if err != nil {
		t.Fatalf("warm GetFilteredData: %v", err)
	}
	if len(view.Houses) != 1 {
		t.Fatalf("houses=%+v", view.Houses)
	}
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("warm instance must not call provider: calls=%d", n)
	}
	if info := second.CacheInfo(); info.AgeMs != 60_000 || info.Generation != 1 {
		t.Fatalf("warm info=%+v", info)
	}

	second.Invalidate(context.Background())
	if mr.Exists(keys.Snapshot("test")) {
		t.Fatal("Invalidate must delete the snapshot")
	}
	if second.CacheInfo().HasCache {
		t.Fatal("Invalidate must clear the slot")
	}
}

func TestWarm_SkipsExpiredSnapshotAndFilledSlot(t *testing.T) {
	c := &clock{t: t0}
	mirror, _ := newMirror(t, c)
	p := &countingProvider{ads: []listings.RawAd{raw("h1", 0.5, 0.5, 1)}}
	req := model.Region{North: 0.6, South: 0.4, East: 0.6, West: 0.4}

	s, _ := New(Options{Provider: p, TTL: 300 * time.Second, Now: c.now, Snapshot: mirror})
	if _, err := s.GetFilteredData(context.Background(), req, model.FilterCriteria{}); err != nil {
		t.Fatalf("GetFilteredData: %v", err)
	}
	if ok, _ := s.Warm(context.Background()); ok {
		t.Fatal("Warm must not replace a filled slot")
	}

	// Redis still holds the key (miniredis clock not advanced) but the entry is stale
	c.set(t0.Add(301 * time.Second))
	fresh, _ := New(Options{Provider: p, TTL: 300 * time.Second, Now: c.now, Snapshot: mirror})
	if ok, err := fresh.Warm(context.Background()); ok || err != nil {
		t.Fatalf("expired snapshot ok=%v err=%v", ok, err)
	}
}

func TestWarm_NoMirror(t *testing.T) {
	s, _ := New(Options{Provider: &countingProvider{}})
	if ok, err := s.Warm(context.Background()); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

// recordingMirror logs Save and Delete in completion order. A Save of the
// held generation parks until release is closed.
type recordingMirror struct {
	mu      sync.Mutex
	ops     []string
	active  int
	overlap bool

	hold    uint64
	started chan struct{}
	release chan struct{}
}

func newRecordingMirror(hold uint64) *recordingMirror {
	return &recordingMirror{hold: hold, started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (m *recordingMirror) enter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active++
	if m.active > 1 {
		m.overlap = true
	}
}

func (m *recordingMirror) leave(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
	m.active--
}

func (m *recordingMirror) Save(_ context.Context, e *cache.Entry) error {
	m.enter()
	if e.Generation == m.hold {
		m.started <- struct{}{}
		<-m.release
	}
	m.leave(fmt.Sprintf("save %d", e.Generation))
	return nil
}

func (m *recordingMirror) Load(context.Context) (*cache.Entry, error) { return nil, nil }

func (m *recordingMirror) Delete(context.Context) error {
	m.enter()
	m.leave("delete")
	return nil
}

func (m *recordingMirror) result() ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...), m.overlap
}

func TestMirror_NewerInstallSavedAfterSlowSave(t *testing.T) {
	c := &clock{t: t0}
	m := newRecordingMirror(1)
	p := &countingProvider{ads: []listings.RawAd{raw("h1", 0.5, 0.5, 1)}}
	s, err := New(Options{Provider: p, TTL: 300 * time.Second, Now: c.now, Snapshot: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	a := model.Region{North: 0.6, South: 0.4, East: 0.6, West: 0.4}
	b := model.Region{North: 10.6, South: 10.4, East: 10.6, West: 10.4}

	done := make(chan error, 2)
	go func() {
		_, err := s.GetFilteredData(ctx, a, model.FilterCriteria{})
		done <- err
	}()
	<-m.started

	go func() {
		_, err := s.GetFilteredData(ctx, b, model.FilterCriteria{})
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if e := s.store.Get(); e != nil && e.Generation == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second fetch never installed")
		}
		time.Sleep(time.Millisecond)
	}
	// give the second request time to reach the mirror
	time.Sleep(20 * time.Millisecond)
	close(m.release)

	for range 2 {
		if err := <-done; err != nil {
			t.Fatalf("GetFilteredData: %v", err)
		}
	}
	ops, overlap := m.result()
	if overlap {
		t.Fatal("snapshot writes overlapped")
	}
	if want := []string{"save 1", "save 2"}; !reflect.DeepEqual(ops, want) {
		t.Fatalf("ops=%v want %v", ops, want)
	}
}

func TestMirror_InvalidateDuringSaveDeletesLast(t *testing.T) {
	c := &clock{t: t0}
	m := newRecordingMirror(1)
	p := &countingProvider{ads: []listings.RawAd{raw("h1", 0.5, 0.5, 1)}}
	s, err := New(Options{Provider: p, TTL: 300 * time.Second, Now: c.now, Snapshot: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	req := model.Region{North: 0.6, South: 0.4, East: 0.6, West: 0.4}

	fetched := make(chan error, 1)
	go func() {
		_, err := s.GetFilteredData(ctx, req, model.FilterCriteria{})
		fetched <- err
	}()
	<-m.started

	invalidated := make(chan struct{})
	go func() {
		s.Invalidate(ctx)
		close(invalidated)
	}()
	time.Sleep(20 * time.Millisecond)
	close(m.release)

	if err := <-fetched; err != nil {
		t.Fatalf("GetFilteredData: %v", err)
	}
	<-invalidated

	ops, overlap := m.result()
	if overlap {
		t.Fatal("snapshot save and delete overlapped")
	}
	if want := []string{"save 1", "delete"}; !reflect.DeepEqual(ops, want) {
		t.Fatalf("ops=%v want %v", ops, want)
	}
	if s.CacheInfo().HasCache {
		t.Fatal("slot must be empty after Invalidate")
	}
}

func TestMirror_SkipsEntryReplacedBeforeSave(t *testing.T) {
	m := newRecordingMirror(0)
	s, err := New(Options{Provider: &countingProvider{}, Snapshot: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stale := &cache.Entry{Generation: 1, FetchedAt: t0}
	s.store.Put(stale)
	s.store.Put(&cache.Entry{Generation: 2, FetchedAt: t0})

	s.mirror(context.Background(), stale)
	if ops, _ := m.result(); len(ops) != 0 {
		t.Fatalf("replaced entry was mirrored: %v", ops)
	}
}
