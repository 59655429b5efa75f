package resolver

import (
	"fmt"
	"net/url"
	"strings"
)

// reserved top-level segments belong to application pages and never name a
// memorial or company.
var reserved = map[string]bool{
	"search":    true,
	"login":     true,
	"register":  true,
	"profile":   true,
	"companies": true,
	"shop":      true,
	"cart":      true,
	"admin":     true,
	"api":       true,
	"upload":    true,
	"uploads":   true,
	"memorial":  true,
	"company":   true,
}

func IsReserved(segment string) bool {
	return reserved[strings.ToLower(segment)]
}

// ParsePath maps /memorial/x, /company/x and /x to a route and its segment.
// Query strings, fragments and a trailing slash are ignored.
func ParsePath(path string) (RouteKind, string, error) {
	p := strings.TrimSpace(path)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	for i, part := range parts {
		unescaped, err := url.PathUnescape(part)
		if err != nil {
			return 0, "", fmt.Errorf("parse %q: %w", path, ErrInvalidPath)
		}
		parts[i] = unescaped
	}

	switch {
	case len(parts) == 1:
		if IsReserved(parts[0]) {
			return 0, "", fmt.Errorf("parse %q: %w", path, ErrReservedPath)
		}
		return RouteSlug, parts[0], nil
	case len(parts) == 2 && parts[0] == "memorial":
		return RouteMemorial, parts[1], nil
	case len(parts) == 2 && parts[0] == "company":
		return RouteCompany, parts[1], nil
	}
	return 0, "", fmt.Errorf("parse %q: %w", path, ErrInvalidPath)
}
