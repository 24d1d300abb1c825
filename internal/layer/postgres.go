package layer

import (
	"context"
	"database/sql"
	"errors"

	"atlaskg.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, l *Layer) error {
	if l.ID == "" {
		l.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into layers (id, name, description, format, source_iri, created_by)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, l.ID, l.Name, l.Description, l.Format, l.SourceIRI, l.CreatedBy)
	return row.Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Layer, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, description, format, source_iri, created_by, created_at, updated_at
		from layers where id = $1
	`, id)
	var l Layer
	if err := row.Scan(&l.ID, &l.Name, &l.Description, &l.Format, &l.SourceIRI, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *PGStore) List(ctx context.Context, limit, offset int) ([]*Layer, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, format, source_iri, created_by, created_at, updated_at
		from layers order by created_at asc limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var layers []*Layer
	for rows.Next() {
		var l Layer
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.Format, &l.SourceIRI, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		layers = append(layers, &l)
	}
	return layers, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, id string, upd Update) (*Layer, error) {
	row := s.db.QueryRowContext(ctx, `
		update layers
		set name        = coalesce($2, name),
		    description = coalesce($3, description),
		    format      = coalesce($4, format),
		    source_iri  = coalesce($5, source_iri),
		    updated_at  = now()
		where id = $1
		returning id, name, description, format, source_iri, created_by, created_at, updated_at
	`, id, upd.Name, upd.Description, upd.Format, upd.SourceIRI)
	var l Layer
	if err := row.Scan(&l.ID, &l.Name, &l.Description, &l.Format, &l.SourceIRI, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from layers where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
