package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/ChaseHampton/lapida/internal/logging"
	"go.uber.org/zap"
)

var (
	ErrReservedPath = errors.New("reserved path")
	ErrInvalidPath  = errors.New("invalid path")
)

// Fetcher is the subset of api.Client the resolver calls.
type Fetcher interface {
	MemorialBySlug(ctx context.Context, slug string) (*domain.Memorial, error)
	MemorialByShare(ctx context.Context, share string) (*domain.Memorial, error)
	MemorialByID(ctx context.Context, id string) (*domain.Memorial, error)
	CompanyBySlug(ctx context.Context, slug string) (*domain.Company, error)
	CompanyByID(ctx context.Context, id string) (*domain.Company, error)
}

type RouteKind int

const (
	// RouteMemorial is /memorial/:x
	RouteMemorial RouteKind = iota
	// RouteSlug is /:slug
	RouteSlug
	// RouteCompany is /company/:x
	RouteCompany
)

func (k RouteKind) String() string {
	switch k {
	case RouteMemorial:
		return "memorial"
	case RouteSlug:
		return "slug"
	case RouteCompany:
		return "company"
	}
	return fmt.Sprintf("route(%d)", int(k))
}

type Lookup int

const (
	LookupShare Lookup = iota
	LookupSlug
	LookupID
	LookupCompanySlug
	LookupCompanyID
)

func (l Lookup) String() string {
	switch l {
	case LookupShare:
		return "share"
	case LookupSlug:
		return "slug"
	case LookupID:
		return "id"
	case LookupCompanySlug:
		return "company-slug"
	case LookupCompanyID:
		return "company-id"
	}
	return fmt.Sprintf("lookup(%d)", int(l))
}

func (l Lookup) company() bool {
	return l == LookupCompanySlug || l == LookupCompanyID
}

var chains = map[RouteKind][]Lookup{
	RouteMemorial: {LookupShare, LookupSlug, LookupID},
	RouteSlug:     {LookupSlug, LookupShare, LookupID, LookupCompanySlug, LookupCompanyID},
	RouteCompany:  {LookupCompanySlug, LookupCompanyID},
}

// Chain returns the lookups tried for a route, in order.
func Chain(route RouteKind) []Lookup {
	return append([]Lookup(nil), chains[route]...)
}

// Resolution is the outcome of a successful Resolve. Exactly one of Memorial
// and Company is set.
type Resolution struct {
	Route    RouteKind
	Segment  string
	Lookup   Lookup
	Attempts []Lookup
	Memorial *domain.Memorial
	Company  *domain.Company
}

type Resolver struct {
	fetcher Fetcher
	logger  *zap.Logger
}

func New(fetcher Fetcher, logger *zap.Logger) *Resolver {
	logger = logging.OrNop(logger)
	return &Resolver{fetcher: fetcher, logger: logger}
}

// Resolve tries each lookup of the route in order and returns the first hit.
// It reports domain.ErrNotFound only after every lookup answered "not found";
// if any of them failed on the network the result is a network error instead.
func (r *Resolver) Resolve(ctx context.Context, route RouteKind, segment string) (*Resolution, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return nil, fmt.Errorf("resolve %s: empty segment: %w", route, ErrInvalidPath)
	}
	chain, ok := chains[route]
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", route, ErrInvalidPath)
	}

	start := time.Now()
	res := &Resolution{Route: route, Segment: segment}
	var netErr error
	for _, lookup := range chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Attempts = append(res.Attempts, lookup)
		err := r.try(ctx, lookup, segment, res)
		if err == nil {
			res.Lookup = lookup
			r.logger.Debug("route resolved",
				zap.Stringer("route", route),
				zap.String("segment", segment),
				zap.Stringer("lookup", lookup),
				zap.Int("attempts", len(res.Attempts)),
				zap.Duration("took", time.Since(start)))
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrNetwork) {
			if netErr == nil {
				netErr = err
			}
			r.logger.Warn("lookup failed",
				zap.Stringer("lookup", lookup),
				zap.String("segment", segment),
				zap.Error(err))
			continue
		}
		// 404s and other client errors (malformed id, private memorial) are a
		// miss for this lookup only.
		r.logger.Debug("lookup missed",
			zap.Stringer("lookup", lookup),
			zap.String("segment", segment),
			zap.Error(err))
	}

	if netErr != nil {
		return nil, fmt.Errorf("resolve %s %q: %w", route, segment, netErr)
	}
	return nil, fmt.Errorf("resolve %s %q: %w", route, segment, domain.ErrNotFound)
}

// ResolvePath parses path and resolves it.
func (r *Resolver) ResolvePath(ctx context.Context, path string) (*Resolution, error) {
	route, segment, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, route, segment)
}

func (r *Resolver) try(ctx context.Context, lookup Lookup, segment string, res *Resolution) error {
	if lookup.company() {
		var c *domain.Company
		var err error
		if lookup == LookupCompanySlug {
			c, err = r.fetcher.CompanyBySlug(ctx, segment)
		} else {
			c, err = r.fetcher.CompanyByID(ctx, segment)
		}
		if err != nil {
			return err
		}
		res.Company = c
		return nil
	}

	var m *domain.Memorial
	var err error
	switch lookup {
	case LookupShare:
		m, err = r.fetcher.MemorialByShare(ctx, segment)
	case LookupSlug:
		m, err = r.fetcher.MemorialBySlug(ctx, segment)
	default:
		m, err = r.fetcher.MemorialByID(ctx, segment)
	}
	if err != nil {
		return err
	}
	res.Memorial = m
	return nil
}
