package search

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ChaseHampton/lapida/internal/domain"
)

const PageSize = 12

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// SearchFilters are the structured search fields. The zero value means "no
// filter".
type SearchFilters struct {
	Name        string `json:"name,omitempty" validate:"max=200"`
	BirthDate   string `json:"birthDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DeathDate   string `json:"deathDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BirthPlace  string `json:"birthPlace,omitempty" validate:"max=200"`
	BurialPlace string `json:"burialPlace,omitempty" validate:"max=200"`
	SortBy      string `json:"sortBy,omitempty" validate:"omitempty,oneof=fullName birthDate deathDate createdAt views"`
	SortOrder   string `json:"sortOrder,omitempty" validate:"omitempty,oneof=asc desc"`
}

func (f SearchFilters) IsEmpty() bool {
	return strings.TrimSpace(f.Name) == "" &&
		f.BirthDate == "" && f.DeathDate == "" &&
		strings.TrimSpace(f.BirthPlace) == "" &&
		strings.TrimSpace(f.BurialPlace) == ""
}

type SearchParams struct {
	Query   string
	Filters SearchFilters
	Page    int
	Limit   int
}

type SearchResponse struct {
	Memorials []domain.Memorial `json:"memorials"`
	Total     int               `json:"total"`
}

// Values encodes the params for GET /api/memorials/search. Empty fields are
// left out; page and limit are always present.
func (p SearchParams) Values() url.Values {
	q := url.Values{}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			q.Set(key, v)
		}
	}
	set("q", p.Query)
	set("name", p.Filters.Name)
	set("birthDate", p.Filters.BirthDate)
	set("deathDate", p.Filters.DeathDate)
	set("birthPlace", p.Filters.BirthPlace)
	set("burialPlace", p.Filters.BurialPlace)
	set("sortBy", p.Filters.SortBy)
	set("sortOrder", p.Filters.SortOrder)

	page := p.Page
	if page < 1 {
		page = 1
	}
	limit := p.Limit
	if limit < 1 {
		limit = PageSize
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

// ParamsFromValues is the inverse of Values. Malformed page or limit fall
// back to the defaults.
func ParamsFromValues(q url.Values) SearchParams {
	p := SearchParams{
		Query: q.Get("q"),
		Filters: SearchFilters{
			Name:        q.Get("name"),
			BirthDate:   q.Get("birthDate"),
			DeathDate:   q.Get("deathDate"),
			BirthPlace:  q.Get("birthPlace"),
			BurialPlace: q.Get("burialPlace"),
			SortBy:      q.Get("sortBy"),
			SortOrder:   q.Get("sortOrder"),
		},
		Page:  1,
		Limit: PageSize,
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.Limit = n
	}
	return p
}

// TotalPages is ceil(total/pageSize).
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// PageOf slices an in-memory result list. Pages past the end are empty.
func PageOf(memorials []domain.Memorial, page, pageSize int) []domain.Memorial {
	if page < 1 || pageSize <= 0 {
		return []domain.Memorial{}
	}
	start := (page - 1) * pageSize
	if start >= len(memorials) {
		return []domain.Memorial{}
	}
	end := min(start+pageSize, len(memorials))
	return memorials[start:end]
}
