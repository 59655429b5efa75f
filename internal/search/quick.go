package search

import (
	"sort"
	"strings"
	"time"

	"github.com/ChaseHampton/lapida/internal/domain"
)

// QuickFilter keeps the memorials whose fullName/name, biography, location
// or epitaph contains query, ignoring case. A blank query keeps everything.
func QuickFilter(memorials []domain.Memorial, query string) []domain.Memorial {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Memorial, 0, len(memorials))
	for _, m := range memorials {
		if needle == "" || matches(m, needle) {
			out = append(out, m)
		}
	}
	return out
}

func matches(m domain.Memorial, needle string) bool {
	for _, field := range []string{m.FullName, m.Name, m.Biography, m.Location.String(), m.Epitaph} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// SortMemorials orders a copy of memorials in place of the server-side sort
// for quick results. Unknown keys keep the input order.
func SortMemorials(memorials []domain.Memorial, sortBy, order string) []domain.Memorial {
	out := append([]domain.Memorial(nil), memorials...)
	less := lessFunc(sortBy)
	if less == nil {
		return out
	}
	desc := order == SortDesc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func lessFunc(sortBy string) func(a, b domain.Memorial) bool {
	switch sortBy {
	case "fullName":
		return func(a, b domain.Memorial) bool {
			return strings.ToLower(a.DisplayName()) < strings.ToLower(b.DisplayName())
		}
	case "birthDate":
		return func(a, b domain.Memorial) bool { return parseDate(a.BirthDate).Before(parseDate(b.BirthDate)) }
	case "deathDate":
		return func(a, b domain.Memorial) bool { return parseDate(a.DeathDate).Before(parseDate(b.DeathDate)) }
	case "createdAt":
		return func(a, b domain.Memorial) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "views":
		return func(a, b domain.Memorial) bool { return a.Views < b.Views }
	}
	return nil
}

// parseDate accepts plain dates and full timestamps; anything else sorts first.
func parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
