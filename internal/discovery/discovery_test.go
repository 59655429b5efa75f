package discovery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChaseHampton/lapida/internal/client"
	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeBackend struct {
	srv    *httptest.Server
	app    string
	status atomic.Int32
	delay  time.Duration
	hits   atomic.Int32
}

func newBackend(t *testing.T, app string, delay time.Duration) *fakeBackend {
	t.Helper()
	b := &fakeBackend{app: app, delay: delay}
	b.status.Store(http.StatusOK)
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		b.hits.Add(1)
		if b.delay > 0 {
			time.Sleep(b.delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(b.status.Load()))
		w.Write([]byte(`{"status":"ok","app":"` + b.app + `"}`))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) port(t *testing.T) int {
	u, err := url.Parse(b.srv.URL)
	require.NoError(t, err)
	p, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return p
}

func (b *fakeBackend) base(t *testing.T) string {
	return "http://127.0.0.1:" + strconv.Itoa(b.port(t)) + "/api"
}

func deadPort(t *testing.T) int {
	srv := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(srv.URL)
	srv.Close()
	p, _ := strconv.Atoi(u.Port())
	return p
}

func newDiscoverer(t *testing.T, ports ...int) *discovery.Discoverer {
	t.Helper()
	hc := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	c := client.NewWithHTTPClient(hc, &config.HTTPConfig{UserAgent: "test"}, nil)
	d, err := discovery.New(c, &config.DiscoveryConfig{
		Origin:        "http://127.0.0.1:3000",
		Ports:         ports,
		HealthTimeout: time.Second,
	}, discovery.NewMemoryStore(), nil)
	require.NoError(t, err)
	return d
}

func TestNew_RejectsBadOrigin(t *testing.T) {
	_, err := discovery.New(nil, &config.DiscoveryConfig{Origin: "localhost"}, nil, nil)
	assert.Error(t, err)
}

func TestCandidates(t *testing.T) {
	d := newDiscoverer(t, 5000, 5005)
	assert.Equal(t, []string{"http://127.0.0.1:5000/api", "http://127.0.0.1:5005/api"}, d.Candidates())
	assert.Equal(t, "http://127.0.0.1:3000/api", d.Fallback())
}

func TestDiscover_PicksFirstLapidaCandidate(t *testing.T) {
	other := newBackend(t, "something-else", 0)
	lapida := newBackend(t, "lapida", 0)
	d := newDiscoverer(t, deadPort(t), other.port(t), lapida.port(t))

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lapida.base(t), res.Base)
	assert.False(t, res.Fallback)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(1), other.hits.Load())
}

func TestDiscover_ReusesCacheUntilServerError(t *testing.T) {
	first := newBackend(t, "lapida", 0)
	second := newBackend(t, "lapida", 0)
	d := newDiscoverer(t, first.port(t), second.port(t))
	ctx := context.Background()

	base, err := d.BaseURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.base(t), base)

	for i := 0; i < 3; i++ {
		res, err := d.Discover(ctx)
		require.NoError(t, err)
		assert.True(t, res.Cached)
		assert.Equal(t, first.base(t), res.Base)
	}
	assert.Equal(t, int64(1), d.Probes())

	first.status.Store(http.StatusInternalServerError)
	res, err := d.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.base(t), res.Base)
	assert.Equal(t, int64(2), d.Probes())
}

func TestDiscover_ClientErrorKeepsCache(t *testing.T) {
	b := newBackend(t, "lapida", 0)
	d := newDiscoverer(t, b.port(t))
	ctx := context.Background()

	_, err := d.BaseURL(ctx)
	require.NoError(t, err)

	b.status.Store(http.StatusUnauthorized)
	res, err := d.Discover(ctx)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, int64(1), d.Probes())
}

func TestDiscover_NetworkFailureReprobes(t *testing.T) {
	first := newBackend(t, "lapida", 0)
	second := newBackend(t, "lapida", 0)
	d := newDiscoverer(t, first.port(t), second.port(t))
	ctx := context.Background()

	_, err := d.BaseURL(ctx)
	require.NoError(t, err)

	first.srv.Close()
	base, err := d.BaseURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.base(t), base)
}

func TestDiscover_FallbackIsNotCached(t *testing.T) {
	d := newDiscoverer(t, deadPort(t))
	ctx := context.Background()

	res, err := d.Discover(ctx)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, "http://127.0.0.1:3000/api", res.Base)

	_, err = d.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Probes())
}

func TestDiscover_CoalescesConcurrentProbes(t *testing.T) {
	b := newBackend(t, "lapida", 100*time.Millisecond)
	d := newDiscoverer(t, b.port(t))

	var wg sync.WaitGroup
	start := make(chan struct{})
	bases := make([]string, 10)
	for i := range bases {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			base, err := d.BaseURL(context.Background())
			assert.NoError(t, err)
			bases[i] = base
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), d.Probes())
	for _, base := range bases {
		assert.Equal(t, b.base(t), base)
	}
}

func TestDiscover_CallerCancellation(t *testing.T) {
	b := newBackend(t, "lapida", 200*time.Millisecond)
	d := newDiscoverer(t, b.port(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Discover(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the shared probe keeps running and fills the cache for later callers
	assert.Eventually(t, func() bool {
		res, err := d.Discover(context.Background())
		return err == nil && res.Base == b.base(t)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDiscover_CancelledCallerKeepsSharedCacheCheck(t *testing.T) {
	b := newBackend(t, "lapida", 300*time.Millisecond)
	d := newDiscoverer(t, b.port(t))

	_, err := d.BaseURL(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), d.Probes())

	impatient, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var impatientErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, impatientErr = d.Discover(impatient)
	}()
	time.Sleep(10 * time.Millisecond)

	res, err := d.Discover(context.Background())
	wg.Wait()

	require.NoError(t, err)
	assert.ErrorIs(t, impatientErr, context.DeadlineExceeded)
	assert.True(t, res.Cached)
	assert.Equal(t, b.base(t), res.Base)
	assert.Equal(t, int64(1), d.Probes())
}

func TestDiscover_AppNameIsExact(t *testing.T) {
	shouting := newBackend(t, "LAPIDA", 0)
	d := newDiscoverer(t, shouting.port(t))

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, d.Fallback(), res.Base)
}

func TestReset(t *testing.T) {
	b := newBackend(t, "lapida", 0)
	d := newDiscoverer(t, b.port(t))
	ctx := context.Background()

	_, err := d.BaseURL(ctx)
	require.NoError(t, err)
	d.Reset(ctx)
	assert.Equal(t, int64(0), d.Probes())

	res, err := d.Discover(ctx)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int64(1), d.Probes())
}

func TestMonitor_ReportsTransitions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := newBackend(t, "lapida", 0)
	defer b.srv.Close()
	b.status.Store(http.StatusServiceUnavailable)
	d := newDiscoverer(t, b.port(t))

	var mu sync.Mutex
	var seen []discovery.Status
	m := discovery.NewMonitor(d, 10*time.Millisecond, func(s discovery.Status, base string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool {
		s, _ := m.Status()
		return s == discovery.StatusReconnecting
	}, time.Second, 5*time.Millisecond)

	b.status.Store(http.StatusOK)
	assert.Eventually(t, func() bool {
		s, base := m.Status()
		return s == discovery.StatusOnline && base == b.base(t)
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, discovery.StatusReconnecting, seen[0])
	assert.Equal(t, discovery.StatusOnline, seen[len(seen)-1])
	assert.Equal(t, "online", discovery.StatusOnline.String())
}
