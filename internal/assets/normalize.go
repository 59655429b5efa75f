package assets

import (
	"context"
	"regexp"
	"strings"

	"github.com/ChaseHampton/lapida/internal/domain"
)

// MemorialUploadDir is where bare filenames are assumed to live.
const MemorialUploadDir = "/upload/memorials/"

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

var devHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
}

// Normalizer turns stored image and document paths into fetchable URLs on
// the discovered server origin. URL is idempotent.
type Normalizer struct {
	origin string
}

func New(apiBase string) *Normalizer {
	return &Normalizer{origin: Origin(apiBase)}
}

// Origin strips a trailing "/api" from an API base.
func Origin(apiBase string) string {
	base := strings.TrimRight(strings.TrimSpace(apiBase), "/")
	base = strings.TrimSuffix(base, "/api")
	return strings.TrimRight(base, "/")
}

func (n *Normalizer) Origin() string {
	return n.origin
}

func (n *Normalizer) URL(raw string) string {
	if n.origin == "" {
		return raw
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}
	s = strings.ReplaceAll(s, `\`, "/")

	if schemeRe.MatchString(s) {
		return n.rewriteDevHost(s)
	}
	if strings.HasPrefix(s, "//") {
		return n.rewriteAuthority(s, s[len("//"):])
	}
	if strings.HasPrefix(s, "upload/") || strings.HasPrefix(s, "uploads/") {
		s = "/" + s
	}
	if strings.HasPrefix(s, "/") {
		return n.origin + s
	}
	if !strings.Contains(s, "/") {
		return n.origin + MemorialUploadDir + s
	}
	return s
}

// rewriteDevHost replaces scheme and authority of http(s) URLs that point at
// a local dev server, keeping the rest of the string byte for byte.
func (n *Normalizer) rewriteDevHost(s string) string {
	lower := strings.ToLower(s)
	var rest string
	switch {
	case strings.HasPrefix(lower, "http://"):
		rest = s[len("http://"):]
	case strings.HasPrefix(lower, "https://"):
		rest = s[len("https://"):]
	default:
		return s
	}
	return n.rewriteAuthority(s, rest)
}

// rewriteAuthority handles s whose authority starts rest. Dev hosts move onto
// the origin, including its scheme; anything else is returned as is.
func (n *Normalizer) rewriteAuthority(s, rest string) string {
	end := strings.IndexAny(rest, "/?#")
	if end < 0 {
		end = len(rest)
	}
	if !devHosts[hostname(rest[:end])] {
		return s
	}
	tail := rest[end:]
	if tail != "" && tail[0] != '/' {
		tail = "/" + tail
	}
	return n.origin + tail
}

func hostname(authority string) string {
	if at := strings.LastIndex(authority, "@"); at >= 0 {
		authority = authority[at+1:]
	}
	if strings.HasPrefix(authority, "[") {
		if end := strings.Index(authority, "]"); end > 0 {
			return strings.ToLower(authority[1:end])
		}
	}
	if colon := strings.LastIndex(authority, ":"); colon >= 0 {
		authority = authority[:colon]
	}
	return strings.ToLower(authority)
}

func (n *Normalizer) Photos(photos []domain.Photo) []domain.Photo {
	if photos == nil {
		return nil
	}
	out := make([]domain.Photo, 0, len(photos))
	for _, p := range photos {
		if p.IsZero() {
			continue
		}
		p.URL = n.URL(p.URL)
		out = append(out, p)
	}
	return out
}

// Memorial returns a copy with every asset reference normalized.
func (n *Normalizer) Memorial(m domain.Memorial) domain.Memorial {
	m.ProfileImage = n.URL(m.ProfileImage)
	m.GalleryImages = n.Photos(m.GalleryImages)
	m.Location.GravePhotos = n.Photos(m.Location.GravePhotos)
	return m
}

func (n *Normalizer) Company(c domain.Company) domain.Company {
	c.Logo = n.URL(c.Logo)
	c.Gallery = n.Photos(c.Gallery)
	if c.Products != nil {
		products := make([]domain.Product, len(c.Products))
		for i, p := range c.Products {
			p.Image = n.URL(p.Image)
			products[i] = p
		}
		c.Products = products
	}
	if c.Documents != nil {
		docs := make([]domain.Document, len(c.Documents))
		for i, d := range c.Documents {
			d.URL = n.URL(d.URL)
			docs[i] = d
		}
		c.Documents = docs
	}
	if c.News != nil {
		news := make([]domain.NewsItem, len(c.News))
		for i, item := range c.News {
			item.Image = n.URL(item.Image)
			news[i] = item
		}
		c.News = news
	}
	if c.Team != nil {
		team := make([]domain.TeamMember, len(c.Team))
		for i, member := range c.Team {
			member.Photo = n.URL(member.Photo)
			team[i] = member
		}
		c.Team = team
	}
	return c
}

// BaseSource yields the current API base, normally a discovery.Discoverer.
type BaseSource interface {
	BaseURL(ctx context.Context) (string, error)
}

// Resolver normalizes against whatever base is current at call time. Each
// call is independent, so concurrent resolutions never share results.
type Resolver struct {
	bases BaseSource
}

func NewResolver(bases BaseSource) *Resolver {
	return &Resolver{bases: bases}
}

func (r *Resolver) Normalizer(ctx context.Context) (*Normalizer, error) {
	base, err := r.bases.BaseURL(ctx)
	if err != nil {
		return nil, err
	}
	return New(base), nil
}

func (r *Resolver) URL(ctx context.Context, raw string) (string, error) {
	n, err := r.Normalizer(ctx)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return n.URL(raw), nil
}
