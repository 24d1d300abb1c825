// Package layer manages the curated map layers editors maintain on top of
// the knowledge graph. Plain CRUD; reads are public, writes are gated to
// the EDITOR role at the route table.
package layer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("layer: not found")
	ErrInvalidInput = errors.New("layer: invalid input")
)

// Supported serialization formats for layer sources.
const (
	FormatGeoJSON = "geojson"
	FormatWKT     = "wkt"
)

// Layer is one curated overlay: a named view over graph entities.
type Layer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Format      string    `json:"format"`
	SourceIRI   string    `json:"source_iri,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Update carries optional field changes; nil means keep the stored value.
type Update struct {
	Name        *string
	Description *string
	Format      *string
	SourceIRI   *string
}

// Store persists layers.
type Store interface {
	Create(ctx context.Context, l *Layer) error
	FindByID(ctx context.Context, id string) (*Layer, error)
	List(ctx context.Context, limit, offset int) ([]*Layer, error)
	Update(ctx context.Context, id string, upd Update) (*Layer, error)
	Delete(ctx context.Context, id string) error
}

// Service validates inputs before they reach the store.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("layer store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) Create(ctx context.Context, name, description, format, sourceIRI, createdBy string) (*Layer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: layer name is required", ErrInvalidInput)
	}
	format, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}
	l := &Layer{
		Name:        name,
		Description: strings.TrimSpace(description),
		Format:      format,
		SourceIRI:   strings.TrimSpace(sourceIRI),
		CreatedBy:   createdBy,
	}
	if err := s.store.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*Layer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: layer id is required", ErrInvalidInput)
	}
	return s.store.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Layer, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

func (s *Service) Update(ctx context.Context, id string, upd Update) (*Layer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: layer id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: layer name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Format != nil {
		format, err := normalizeFormat(*upd.Format)
		if err != nil {
			return nil, err
		}
		upd.Format = &format
	}
	return s.store.Update(ctx, id, upd)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: layer id is required", ErrInvalidInput)
	}
	return s.store.Delete(ctx, id)
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case FormatGeoJSON, FormatWKT:
		return format, nil
	case "":
		return FormatGeoJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrInvalidInput, format)
	}
}
