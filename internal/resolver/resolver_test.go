package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/ChaseHampton/lapida/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) memorial(method, arg string) (*domain.Memorial, error) {
	args := m.MethodCalled(method, arg)
	if v := args.Get(0); v != nil {
		return v.(*domain.Memorial), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFetcher) company(method, arg string) (*domain.Company, error) {
	args := m.MethodCalled(method, arg)
	if v := args.Get(0); v != nil {
		return v.(*domain.Company), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFetcher) MemorialBySlug(ctx context.Context, slug string) (*domain.Memorial, error) {
	return m.memorial("slug", slug)
}

func (m *MockFetcher) MemorialByShare(ctx context.Context, share string) (*domain.Memorial, error) {
	return m.memorial("share", share)
}

func (m *MockFetcher) MemorialByID(ctx context.Context, id string) (*domain.Memorial, error) {
	return m.memorial("id", id)
}

func (m *MockFetcher) CompanyBySlug(ctx context.Context, slug string) (*domain.Company, error) {
	return m.company("company-slug", slug)
}

func (m *MockFetcher) CompanyByID(ctx context.Context, id string) (*domain.Company, error) {
	return m.company("company-id", id)
}

func notFound(what string) error {
	return errors.Join(errors.New(what), domain.ErrNotFound)
}

func netFailure() error {
	return &domain.NetworkError{Op: "GET", URL: "http://x/api", Err: errors.New("connection refused")}
}

func TestResolve_MemorialRouteFallsBackToID(t *testing.T) {
	f := new(MockFetcher)
	f.On("share", "abc123").Return(nil, notFound("share")).Once()
	f.On("slug", "abc123").Return(nil, notFound("slug")).Once()
	f.On("id", "abc123").Return(&domain.Memorial{ID: "abc123"}, nil).Once()

	res, err := resolver.New(f, nil).Resolve(context.Background(), resolver.RouteMemorial, "abc123")
	require.NoError(t, err)
	assert.Equal(t, resolver.LookupID, res.Lookup)
	assert.Equal(t, "abc123", res.Memorial.ID)
	assert.Nil(t, res.Company)
	assert.Equal(t, []resolver.Lookup{resolver.LookupShare, resolver.LookupSlug, resolver.LookupID}, res.Attempts)
	f.AssertExpectations(t)
}

func TestResolve_StopsAtFirstHit(t *testing.T) {
	f := new(MockFetcher)
	f.On("slug", "ivan-ivanov").Return(&domain.Memorial{ID: "m1", CustomSlug: "ivan-ivanov"}, nil).Once()

	res, err := resolver.New(f, nil).Resolve(context.Background(), resolver.RouteSlug, "ivan-ivanov")
	require.NoError(t, err)
	assert.Equal(t, resolver.LookupSlug, res.Lookup)
	assert.Equal(t, "m1", res.Memorial.ID)
	f.AssertExpectations(t)
	f.AssertNotCalled(t, "share", "ivan-ivanov")
}

func TestResolve_SlugRouteFallsBackToCompany(t *testing.T) {
	f := new(MockFetcher)
	f.On("slug", "granit").Return(nil, notFound("slug"))
	f.On("share", "granit").Return(nil, notFound("share"))
	f.On("id", "granit").Return(nil, &domain.StatusError{StatusCode: 400, Body: "invalid id"})
	f.On("company-slug", "granit").Return(&domain.Company{ID: "c1", Name: "Granit"}, nil)

	res, err := resolver.New(f, nil).Resolve(context.Background(), resolver.RouteSlug, "granit")
	require.NoError(t, err)
	assert.Equal(t, resolver.LookupCompanySlug, res.Lookup)
	assert.Equal(t, "Granit", res.Company.Name)
	assert.Nil(t, res.Memorial)
	f.AssertExpectations(t)
}

func TestResolve_NotFoundOnlyAfterEveryLookup(t *testing.T) {
	f := new(MockFetcher)
	for _, l := range resolver.Chain(resolver.RouteSlug) {
		f.On(l.String(), "ghost").Return(nil, notFound(l.String())).Once()
	}

	_, err := resolver.New(f, nil).Resolve(context.Background(), resolver.RouteSlug, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrNetwork)
	f.AssertNumberOfCalls(t, "share", 1)
	f.AssertExpectations(t)
}

func TestResolve_NetworkFailureIsNotNotFound(t *testing.T) {
	f := new(MockFetcher)
	f.On("share", "x").Return(nil, notFound("share"))
	f.On("slug", "x").Return(nil, netFailure())
	f.On("id", "x").Return(nil, notFound("id"))

	_, err := resolver.New(f, nil).Resolve(context.Background(), resolver.RouteMemorial, "x")
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	f.AssertExpectations(t)
}

func TestResolve_NetworkFailureThenHit(t *testing.T) {
	f := new(MockFetcher)
	f.On("share", "x").Return(nil, netFailure())
	f.On("slug", "x").Return(&domain.Memorial{ID: "m"}, nil)

	res, err := resolver.New(f, nil).Resolve(context.Background(), resolver.RouteMemorial, "x")
	require.NoError(t, err)
	assert.Equal(t, resolver.LookupSlug, res.Lookup)
}

func TestResolve_CancellationStopsChain(t *testing.T) {
	f := new(MockFetcher)
	ctx, cancel := context.WithCancel(context.Background())
	f.On("share", "x").Run(func(mock.Arguments) { cancel() }).Return(nil, context.Canceled)

	_, err := resolver.New(f, nil).Resolve(ctx, resolver.RouteMemorial, "x")
	assert.ErrorIs(t, err, context.Canceled)
	f.AssertNotCalled(t, "slug", "x")
	f.AssertNotCalled(t, "id", "x")
}

func TestResolve_EmptySegment(t *testing.T) {
	_, err := resolver.New(new(MockFetcher), nil).Resolve(context.Background(), resolver.RouteMemorial, "  ")
	assert.ErrorIs(t, err, resolver.ErrInvalidPath)
}

func TestResolvePath(t *testing.T) {
	f := new(MockFetcher)
	f.On("company-slug", "granit").Return(nil, notFound("company-slug"))
	f.On("company-id", "granit").Return(&domain.Company{ID: "granit"}, nil)

	res, err := resolver.New(f, nil).ResolvePath(context.Background(), "/company/granit")
	require.NoError(t, err)
	assert.Equal(t, resolver.RouteCompany, res.Route)
	assert.Equal(t, resolver.LookupCompanyID, res.Lookup)

	_, err = resolver.New(f, nil).ResolvePath(context.Background(), "/search")
	assert.ErrorIs(t, err, resolver.ErrReservedPath)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path    string
		route   resolver.RouteKind
		segment string
		err     error
	}{
		{"/memorial/abc123", resolver.RouteMemorial, "abc123", nil},
		{"/memorial/abc123/", resolver.RouteMemorial, "abc123", nil},
		{"/ivan-ivanov?tab=gallery", resolver.RouteSlug, "ivan-ivanov", nil},
		{"/%D0%B8%D0%B2%D0%B0%D0%BD", resolver.RouteSlug, "иван", nil},
		{"/company/granit#reviews", resolver.RouteCompany, "granit", nil},
		{"/search", 0, "", resolver.ErrReservedPath},
		{"/Admin", 0, "", resolver.ErrReservedPath},
		{"/", 0, "", resolver.ErrInvalidPath},
		{"/memorial", 0, "", resolver.ErrReservedPath},
		{"/a/b/c", 0, "", resolver.ErrInvalidPath},
		{"/bad%zz", 0, "", resolver.ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route, segment, err := resolver.ParsePath(tt.path)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.route, route)
			assert.Equal(t, tt.segment, segment)
		})
	}
}
