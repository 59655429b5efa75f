package domain

import (
	"slices"
	"strings"
	"time"
)

type Editor struct {
	User        Ref      `json:"user"`
	Permissions []string `json:"permissions,omitempty"`
}

type Memorial struct {
	ID            string        `json:"_id"`
	CustomSlug    string        `json:"customSlug,omitempty"`
	ShareURL      string        `json:"shareUrl,omitempty"`
	FullName      string        `json:"fullName,omitempty"`
	Name          string        `json:"name,omitempty"`
	Epitaph       string        `json:"epitaph,omitempty"`
	Biography     string        `json:"biography,omitempty"`
	ProfileImage  string        `json:"profileImage,omitempty"`
	GalleryImages []Photo       `json:"galleryImages,omitempty"`
	BirthDate     string        `json:"birthDate,omitempty"`
	DeathDate     string        `json:"deathDate,omitempty"`
	BirthPlace    string        `json:"birthPlace,omitempty"`
	BurialPlace   string        `json:"burialPlace,omitempty"`
	Location      Location      `json:"location"`
	Views         int           `json:"views"`
	IsPrivate     bool          `json:"isPrivate,omitempty"`
	CreatedBy     Ref           `json:"createdBy,omitempty"`
	Editors       []Editor      `json:"editors,omitempty"`
	VirtualItems  []VirtualItem `json:"virtualItems,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// DisplayName prefers fullName; older documents only carry name.
func (m *Memorial) DisplayName() string {
	if strings.TrimSpace(m.FullName) != "" {
		return m.FullName
	}
	return m.Name
}

// PublicPath is the canonical route for the memorial: the custom slug when
// set, otherwise the share token, otherwise the id.
func (m *Memorial) PublicPath() string {
	switch {
	case m.CustomSlug != "":
		return "/" + m.CustomSlug
	case m.ShareURL != "":
		return "/memorial/" + m.ShareURL
	default:
		return "/memorial/" + m.ID
	}
}

// CanEdit reports whether userID may edit the given section. The creator may
// edit everything.
func (m *Memorial) CanEdit(userID, section string) bool {
	if userID == "" {
		return false
	}
	if string(m.CreatedBy) == userID {
		return true
	}
	for _, e := range m.Editors {
		if string(e.User) == userID && slices.Contains(e.Permissions, section) {
			return true
		}
	}
	return false
}

type Product struct {
	ID          string  `json:"_id,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Image       string  `json:"image,omitempty"`
	Category    string  `json:"category,omitempty"`
	InStock     bool    `json:"inStock"`
}

type Document struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Review struct {
	Author    Ref       `json:"author,omitempty"`
	Name      string    `json:"name,omitempty"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type NewsItem struct {
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type TeamMember struct {
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
	Photo    string `json:"photo,omitempty"`
}

type Company struct {
	ID          string       `json:"_id"`
	CustomSlug  string       `json:"customSlug,omitempty"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Logo        string       `json:"logo,omitempty"`
	Gallery     []Photo      `json:"gallery,omitempty"`
	Products    []Product    `json:"products,omitempty"`
	Documents   []Document   `json:"documents,omitempty"`
	Reviews     []Review     `json:"reviews,omitempty"`
	News        []NewsItem   `json:"news,omitempty"`
	Team        []TeamMember `json:"team,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	Email       string       `json:"email,omitempty"`
	Website     string       `json:"website,omitempty"`
	Address     string       `json:"address,omitempty"`
	Owner       Ref          `json:"owner,omitempty"`
}

func (c *Company) CanEdit(userID string) bool {
	return userID != "" && string(c.Owner) == userID
}

func (c *Company) AverageRating() float64 {
	if len(c.Reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range c.Reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(c.Reviews))
}
