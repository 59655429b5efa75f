package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PhotoForm records which JSON shape a photo arrived in so it can be written
// back the same way.
type PhotoForm int

const (
	PhotoString PhotoForm = iota
	PhotoObject
)

// Photo is either a bare URL string or an object {url, description}.
type Photo struct {
	URL         string
	Description string
	Form        PhotoForm
}

func NewPhoto(url string) Photo {
	return Photo{URL: url, Form: PhotoString}
}

func (p *Photo) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = Photo{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Photo{URL: s, Form: PhotoString}
		return nil
	case '{':
		var obj struct {
			URL         string `json:"url"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*p = Photo{URL: obj.URL, Description: obj.Description, Form: PhotoObject}
		return nil
	}
	return fmt.Errorf("photo: unsupported json value %s", string(data))
}

func (p Photo) MarshalJSON() ([]byte, error) {
	if p.Form == PhotoString {
		return json.Marshal(p.URL)
	}
	return json.Marshal(struct {
		URL         string `json:"url"`
		Description string `json:"description,omitempty"`
	}{p.URL, p.Description})
}

func (p Photo) IsZero() bool {
	return strings.TrimSpace(p.URL) == ""
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is a free-text place or a structured burial location.
type Location struct {
	Text        string
	Address     string
	Cemetery    string
	Section     string
	Coordinates *Coordinates
	GravePhotos []Photo
}

type locationDoc struct {
	Address     string       `json:"address,omitempty"`
	Cemetery    string       `json:"cemetery,omitempty"`
	Section     string       `json:"section,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	GravePhotos []Photo      `json:"gravePhotos,omitempty"`
}

func (l *Location) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = Location{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Location{Text: s}
		return nil
	}
	var doc locationDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	*l = Location{
		Address:     doc.Address,
		Cemetery:    doc.Cemetery,
		Section:     doc.Section,
		Coordinates: doc.Coordinates,
		GravePhotos: doc.GravePhotos,
	}
	return nil
}

func (l Location) MarshalJSON() ([]byte, error) {
	if l.Text != "" && !l.structured() {
		return json.Marshal(l.Text)
	}
	return json.Marshal(locationDoc{
		Address:     l.Address,
		Cemetery:    l.Cemetery,
		Section:     l.Section,
		Coordinates: l.Coordinates,
		GravePhotos: l.GravePhotos,
	})
}

func (l Location) structured() bool {
	return l.Address != "" || l.Cemetery != "" || l.Section != "" || l.Coordinates != nil || len(l.GravePhotos) > 0
}

// String is the searchable text of the location.
func (l Location) String() string {
	if l.Text != "" {
		return l.Text
	}
	parts := make([]string, 0, 3)
	for _, s := range []string{l.Cemetery, l.Section, l.Address} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
