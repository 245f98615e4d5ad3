package usecase

import (
	"sort"
	"strings"
)

const DefaultPhotoCategory = "clean_living_room"

// DefaultPhotoURLs is the built-in show-photo catalog.
var DefaultPhotoURLs = map[string]string{
	"clean_living_room":     unsplash("photo-1581578731548-c64695cc6958"),
	"carpet_washing":        unsplash("photo-1558317374-067fb5f30001"),
	"deep_kitchen_cleaning": unsplash("photo-1556911220-e15b29be8c8f"),
	"landscape_design":      unsplash("photo-1558904541-efa8c196b27e"),
}

func unsplash(id string) string {
	return "https://images.unsplash.com/" + id + "?auto=format&fit=crop&q=80&w=600"
}

// PhotoCatalog maps show-photo categories to display URLs.
type PhotoCatalog struct {
	urls       map[string]string
	fallback   string
	categories []string
}

// NewPhotoCatalog uses the built-in catalog when urls is empty. An empty or
// unknown fallback resolves to the first category in sorted order.
func NewPhotoCatalog(urls map[string]string, fallback string) *PhotoCatalog {
	if len(urls) == 0 {
		urls = DefaultPhotoURLs
		if fallback == "" {
			fallback = DefaultPhotoCategory
		}
	}

	copied := make(map[string]string, len(urls))
	categories := make([]string, 0, len(urls))
	for key, url := range urls {
		copied[key] = url
		categories = append(categories, key)
	}
	sort.Strings(categories)

	if _, ok := copied[fallback]; !ok {
		fallback = categories[0]
	}
	return &PhotoCatalog{urls: copied, fallback: fallback, categories: categories}
}

// Resolve never fails: unknown categories get the fallback image.
func (p *PhotoCatalog) Resolve(category string) string {
	if url, ok := p.urls[strings.TrimSpace(category)]; ok {
		return url
	}
	return p.urls[p.fallback]
}

// Categories lists the known keys in sorted order.
func (p *PhotoCatalog) Categories() []string {
	return append([]string(nil), p.categories...)
}

func (p *PhotoCatalog) Fallback() string {
	return p.fallback
}
