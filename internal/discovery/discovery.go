package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ChaseHampton/lapida/internal/client"
	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const AppName = "lapida"

// Getter is the part of client.Client discovery needs.
type Getter interface {
	Get(ctx context.Context, url string) (*client.Response, error)
}

type Result struct {
	Base     string
	Cached   bool
	Fallback bool
}

type Discoverer struct {
	getter        Getter
	scheme        string
	hostname      string
	ports         []int
	fallback      string
	healthTimeout time.Duration
	store         Store
	group         singleflight.Group
	probes        atomic.Int64
	logger        *zap.Logger
}

func New(getter Getter, cfg *config.DiscoveryConfig, store Store, logger *zap.Logger) (*Discoverer, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", cfg.Origin, err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: scheme and host required", cfg.Origin)
	}
	if store == nil {
		store = NewMemoryStore()
	}
	logger = logging.OrNop(logger)
	timeout := cfg.HealthTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Discoverer{
		getter:        getter,
		scheme:        origin.Scheme,
		hostname:      origin.Hostname(),
		ports:         append([]int(nil), cfg.Ports...),
		fallback:      origin.Scheme + "://" + origin.Host + "/api",
		healthTimeout: timeout,
		store:         store,
		logger:        logger,
	}, nil
}

// Candidates lists the API bases probed, in order.
func (d *Discoverer) Candidates() []string {
	out := make([]string, 0, len(d.ports))
	for _, port := range d.ports {
		host := net.JoinHostPort(d.hostname, strconv.Itoa(port))
		out = append(out, d.scheme+"://"+host+"/api")
	}
	return out
}

func (d *Discoverer) Fallback() string {
	return d.fallback
}

// Probes is the number of full probe runs started so far.
func (d *Discoverer) Probes() int64 {
	return d.probes.Load()
}

func (d *Discoverer) BaseURL(ctx context.Context) (string, error) {
	res, err := d.Discover(ctx)
	if err != nil {
		return "", err
	}
	return res.Base, nil
}

// Discover returns the cached base after a health check, or probes the
// candidates. It only fails when ctx is done; an unreachable backend yields
// the fallback base.
func (d *Discoverer) Discover(ctx context.Context) (Result, error) {
	cached, ok, err := d.store.Get(ctx)
	if err != nil {
		d.logger.Warn("discovery cache read failed", zap.Error(err))
	}
	if ok {
		healthy, err := d.validate(ctx, cached)
		if err != nil {
			return Result{}, err
		}
		if healthy {
			return Result{Base: cached, Cached: true}, nil
		}
		d.logger.Info("cached api base failed health check", zap.String("base", cached))
		d.Invalidate(ctx)
	}

	ch := d.group.DoChan("probe", func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.probeBudget())
		defer cancel()
		return d.probe(pctx), nil
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		return r.Val.(Result), nil
	}
}

// Invalidate drops the cached base; the next Discover probes again.
func (d *Discoverer) Invalidate(ctx context.Context) {
	if err := d.store.Delete(ctx); err != nil {
		d.logger.Warn("discovery cache delete failed", zap.Error(err))
	}
}

// Reset clears the cache and the probe counter.
func (d *Discoverer) Reset(ctx context.Context) {
	d.Invalidate(ctx)
	d.probes.Store(0)
}

func (d *Discoverer) probeBudget() time.Duration {
	return d.healthTimeout * time.Duration(len(d.ports)+1)
}

// validate health-checks a cached base. The check is shared by concurrent
// callers and runs detached from any one caller's ctx, so a caller that gives
// up only returns its own ctx error.
func (d *Discoverer) validate(ctx context.Context, base string) (bool, error) {
	ch := d.group.DoChan("validate:"+base, func() (any, error) {
		status, _, err := d.health(context.WithoutCancel(ctx), base)
		if err != nil {
			d.logger.Debug("health check failed", zap.String("base", base), zap.Error(err))
			return false, nil
		}
		return status < http.StatusInternalServerError, nil
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-ch:
		return r.Val.(bool), nil
	}
}

func (d *Discoverer) probe(ctx context.Context) Result {
	d.probes.Add(1)
	start := time.Now()
	for _, candidate := range d.Candidates() {
		if ctx.Err() != nil {
			break
		}
		status, app, err := d.health(ctx, candidate)
		if err != nil {
			d.logger.Debug("candidate unreachable", zap.String("base", candidate), zap.Error(err))
			continue
		}
		if status != http.StatusOK || app != AppName {
			d.logger.Debug("candidate rejected",
				zap.String("base", candidate),
				zap.Int("status", status),
				zap.String("app", app))
			continue
		}
		if err := d.store.Set(ctx, candidate); err != nil {
			d.logger.Warn("discovery cache write failed", zap.Error(err))
		}
		d.logger.Info("api base discovered",
			zap.String("base", candidate),
			zap.Duration("took", time.Since(start)))
		return Result{Base: candidate}
	}
	d.logger.Warn("no api candidate answered, using fallback", zap.String("base", d.fallback))
	return Result{Base: d.fallback, Fallback: true}
}

func (d *Discoverer) health(ctx context.Context, base string) (int, string, error) {
	hctx, cancel := context.WithTimeout(ctx, d.healthTimeout)
	defer cancel()
	resp, err := d.getter.Get(hctx, strings.TrimRight(base, "/")+"/health")
	if err != nil {
		return 0, "", err
	}
	var body struct {
		App string `json:"app"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, body.App, nil
}
