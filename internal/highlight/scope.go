package highlight

import (
	"fmt"

	"dispatchmap/internal/segment"
)

// MissingProviderError is returned when a Scope is asked for something it was
// built without.
type MissingProviderError struct {
	Provider string
}

func (e *MissingProviderError) Error() string {
	return fmt.Sprintf("%s is not provided in this scope", e.Provider)
}

// Highlights bundles the hovered order and hovered segment stores.
type Highlights struct {
	Order   *Store[string]
	Segment *Store[string]
}

func NewHighlights() *Highlights {
	return &Highlights{Order: NewStore[string](), Segment: NewStore[string]()}
}

// Scope is the set of shared state one route view hands to its readers.
type Scope struct {
	highlights *Highlights
	filters    *Filters
	manager    *segment.Manager
}

func NewScope(h *Highlights, f *Filters, m *segment.Manager) *Scope {
	return &Scope{highlights: h, filters: f, manager: m}
}

func (s *Scope) Highlight() (*Highlights, error) {
	if s == nil || s.highlights == nil {
		return nil, &MissingProviderError{Provider: "HighlightProvider"}
	}
	return s.highlights, nil
}

func (s *Scope) Filters() (*Filters, error) {
	if s == nil || s.filters == nil {
		return nil, &MissingProviderError{Provider: "FilterProvider"}
	}
	return s.filters, nil
}

func (s *Scope) Manager() (*segment.Manager, error) {
	if s == nil || s.manager == nil {
		return nil, &MissingProviderError{Provider: "RouteManagerProvider"}
	}
	return s.manager, nil
}

func (s *Scope) MustHighlight() *Highlights {
	h, err := s.Highlight()
	if err != nil {
		panic(err)
	}
	return h
}

func (s *Scope) MustFilters() *Filters {
	f, err := s.Filters()
	if err != nil {
		panic(err)
	}
	return f
}

func (s *Scope) MustManager() *segment.Manager {
	m, err := s.Manager()
	if err != nil {
		panic(err)
	}
	return m
}
