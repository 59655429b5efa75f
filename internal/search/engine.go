package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/ChaseHampton/lapida/internal/logging"
	"go.uber.org/zap"
)

// Backend is what the engine needs from the REST client.
type Backend interface {
	ListMemorials(ctx context.Context) ([]domain.Memorial, error)
	SearchMemorials(ctx context.Context, params SearchParams) (*SearchResponse, error)
}

type Mode int

const (
	ModeIdle Mode = iota
	ModeQuick
	ModeStructured
)

// State is a snapshot published after every change.
type State struct {
	Query      string
	Filters    SearchFilters
	Mode       Mode
	Results    []domain.Memorial
	Total      int
	Page       int
	TotalPages int
	Loading    bool
	Err        error
}

type Options struct {
	PageSize       int
	QueryDebounce  time.Duration
	FilterDebounce time.Duration
	// OnChange receives every published state, one call at a time. It must
	// not call back into the engine.
	OnChange func(State)
	Logger   *zap.Logger
}

// Engine drives one search view. Every new request supersedes the previous
// one: its timer is stopped, its context cancelled, and a late response is
// dropped by sequence number.
type Engine struct {
	backend Backend
	opts    Options
	logger  *zap.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	pubMu  sync.Mutex
	mu     sync.Mutex
	state  State
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
}

func NewEngine(ctx context.Context, backend Backend, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = PageSize
	}
	if opts.QueryDebounce <= 0 {
		opts.QueryDebounce = 300 * time.Millisecond
	}
	if opts.FilterDebounce <= 0 {
		opts.FilterDebounce = 500 * time.Millisecond
	}
	logger := logging.OrNop(opts.Logger)
	ectx, stop := context.WithCancel(ctx)
	return &Engine{
		backend: backend,
		opts:    opts,
		logger:  logger,
		ctx:     ectx,
		stop:    stop,
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// SetQuery schedules a quick search after the query debounce. A blank query
// clears the results without a request.
func (e *Engine) SetQuery(query string) {
	e.update(func(s *State) bool {
		seq := e.supersede()
		s.Query = query
		s.Mode = ModeQuick
		s.Err = nil
		s.Page = 1
		if strings.TrimSpace(query) == "" {
			s.Mode = ModeIdle
			s.Results, s.Total, s.TotalPages, s.Loading = nil, 0, 0, false
			return true
		}
		s.Loading = true
		e.schedule(seq, e.opts.QueryDebounce)
		return true
	})
}

// SetFilters validates synchronously, then schedules a structured search on
// page 1 after the filter debounce.
func (e *Engine) SetFilters(filters SearchFilters) {
	e.update(func(s *State) bool {
		seq := e.supersede()
		s.Filters = filters
		s.Mode = ModeStructured
		s.Page = 1
		if err := ValidateFilters(filters); err != nil {
			s.Results, s.Total, s.TotalPages, s.Loading = nil, 0, 0, false
			s.Err = err
			return true
		}
		s.Err = nil
		s.Loading = true
		e.schedule(seq, e.opts.FilterDebounce)
		return true
	})
}

// SetPage fetches another page of the current structured search right away.
func (e *Engine) SetPage(page int) {
	e.update(func(s *State) bool {
		if s.Mode != ModeStructured {
			s.Page = max(page, 1)
			return true
		}
		seq := e.supersede()
		s.Page = max(page, 1)
		s.Loading = true
		s.Err = nil
		e.schedule(seq, 0)
		return true
	})
}

// Reset clears query, filters, results and pagination in one step.
func (e *Engine) Reset() {
	e.update(func(s *State) bool {
		e.supersede()
		*s = State{}
		return true
	})
}

// Close abandons pending and in-flight searches and waits for them to
// return. No state is published afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.supersede()
	e.mu.Unlock()
	e.stop()
	e.wg.Wait()
}

// supersede invalidates whatever is scheduled or running. Callers hold mu.
func (e *Engine) supersede() uint64 {
	e.seq++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	return e.seq
}

// schedule arms the debounce timer for seq. Callers hold mu.
func (e *Engine) schedule(seq uint64, delay time.Duration) {
	if e.closed {
		return
	}
	e.timer = time.AfterFunc(delay, func() { e.dispatch(seq) })
}

func (e *Engine) dispatch(seq uint64) {
	e.mu.Lock()
	if e.closed || seq != e.seq {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.cancel = cancel
	e.timer = nil
	mode := e.state.Mode
	params := SearchParams{
		Query:   e.state.Query,
		Filters: e.state.Filters,
		Page:    max(e.state.Page, 1),
		Limit:   e.opts.PageSize,
	}
	e.wg.Add(1)
	e.mu.Unlock()

	defer e.wg.Done()
	defer cancel()

	start := time.Now()
	var results []domain.Memorial
	var total int
	var err error
	if mode == ModeQuick {
		results, total, err = e.quick(ctx, params)
	} else {
		results, total, err = e.structured(ctx, params)
	}

	e.update(func(s *State) bool {
		if seq != e.seq || e.closed {
			e.logger.Debug("dropping search response",
				zap.Uint64("seq", seq),
				zap.Uint64("latest", e.seq),
				zap.Error(domain.ErrStaleResponse))
			return false
		}
		e.cancel = nil
		s.Loading = false
		if err != nil {
			s.Results, s.Total, s.TotalPages = nil, 0, 0
			s.Err = err
			e.logger.Warn("search failed", zap.Uint64("seq", seq), zap.Error(err))
			return true
		}
		s.Err = nil
		s.Results = results
		s.Total = total
		s.TotalPages = TotalPages(total, e.opts.PageSize)
		e.logger.Debug("search done",
			zap.Uint64("seq", seq),
			zap.Int("total", total),
			zap.Duration("took", time.Since(start)))
		return true
	})
}

func (e *Engine) quick(ctx context.Context, params SearchParams) ([]domain.Memorial, int, error) {
	all, err := e.backend.ListMemorials(ctx)
	if err != nil {
		return nil, 0, err
	}
	found := QuickFilter(all, params.Query)
	found = SortMemorials(found, params.Filters.SortBy, params.Filters.SortOrder)
	return found, len(found), nil
}

func (e *Engine) structured(ctx context.Context, params SearchParams) ([]domain.Memorial, int, error) {
	resp, err := e.backend.SearchMemorials(ctx, params)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.Memorial{}, 0, nil
		}
		return nil, 0, err
	}
	results := resp.Memorials
	if results == nil || params.Page > TotalPages(resp.Total, params.Limit) {
		results = []domain.Memorial{}
	}
	return results, resp.Total, nil
}

// update applies fn under the state lock and publishes the result when fn
// reports a change. pubMu keeps publications in mutation order.
func (e *Engine) update(fn func(s *State) bool) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	changed := fn(&e.state)
	snap := e.snapshot()
	e.mu.Unlock()

	if changed && e.opts.OnChange != nil {
		e.opts.OnChange(snap)
	}
}

func (e *Engine) snapshot() State {
	s := e.state
	if s.Results != nil {
		s.Results = append([]domain.Memorial(nil), s.Results...)
	}
	return s
}
