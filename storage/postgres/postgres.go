// Package postgres implements storage.CertificateRepository and
// storage.TemplateStore backed by PostgreSQL.
//
// Certificates live in issued_certificates with a UNIQUE constraint on
// unique_certificate_id; the constraint is what finally rejects a colliding
// identifier when two issuers race. A never-expiring certificate has a NULL
// expired_on.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/ironcert/storage"
)

const uniqueViolation = "23505"

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.CertificateRepository = (*Store)(nil)
	_ storage.TemplateStore         = (*Store)(nil)
)

// NewRepository returns a Store backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Store.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const certColumns = `id, unique_certificate_id, certificate_template_id, generated_body,
	client, client_id, user_id, state, issued_on, expired_on, comment`

func scanCert(row pgx.Row) (*storage.CertificateRecord, error) {
	var rec storage.CertificateRecord
	err := row.Scan(&rec.ID, &rec.UniqueCertificateID, &rec.TemplateID, &rec.GeneratedBody,
		&rec.Client, &rec.ClientID, &rec.UserID, &rec.State, &rec.IssuedOn, &rec.ExpiredOn, &rec.Comment)
	if err != nil {
		return nil, err
	}
	rec.IssuedOn = rec.IssuedOn.UTC()
	if rec.ExpiredOn != nil {
		t := rec.ExpiredOn.UTC()
		rec.ExpiredOn = &t
	}
	return &rec, nil
}

func (s *Store) Load(ctx context.Context, id int64) (*storage.CertificateRecord, error) {
	rec, err := scanCert(s.pool.QueryRow(ctx,
		`SELECT `+certColumns+` FROM issued_certificates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("certificate %d: %w", id, storage.ErrNotFound)
	}
	return rec, err
}

func (s *Store) LoadByUniqueID(ctx context.Context, uniqueID string) (*storage.CertificateRecord, error) {
	rec, err := scanCert(s.pool.QueryRow(ctx,
		`SELECT `+certColumns+` FROM issued_certificates WHERE unique_certificate_id = $1`, uniqueID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("certificate %s: %w", uniqueID, storage.ErrNotFound)
	}
	return rec, err
}

func (s *Store) Exists(ctx context.Context, uniqueID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM issued_certificates WHERE unique_certificate_id = $1)`,
		uniqueID).Scan(&exists)
	return exists, err
}

func (s *Store) Insert(ctx context.Context, rec *storage.CertificateRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO issued_certificates
		 (unique_certificate_id, certificate_template_id, generated_body, client, client_id,
		  user_id, state, issued_on, expired_on, comment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		rec.UniqueCertificateID, rec.TemplateID, rec.GeneratedBody, rec.Client, rec.ClientID,
		rec.UserID, rec.State, rec.IssuedOn, rec.ExpiredOn, rec.Comment).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, storage.ErrDuplicateKey
		}
		return 0, err
	}
	return id, nil
}

func (s *Store) SetState(ctx context.Context, id int64, state int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE issued_certificates SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("certificate %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// List builds the WHERE clause from the non-zero filter fields.
func (s *Store) List(ctx context.Context, filter storage.CertificateFilter) ([]*storage.CertificateRecord, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Client != "" {
		add("client = $%d", filter.Client)
	}
	if filter.ClientID != 0 {
		add("client_id = $%d", filter.ClientID)
	}
	if filter.UserID != 0 {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ExpiredOnly {
		add("expired_on IS NOT NULL AND expired_on < $%d", filter.Now)
	}

	query := `SELECT ` + certColumns + ` FROM issued_certificates`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*storage.CertificateRecord
	for rows.Next() {
		rec, err := scanCert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetTemplate(ctx context.Context, id int64) (*storage.TemplateRecord, error) {
	var t storage.TemplateRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, body, template_css, page_size, orientation, font,
		        custom_width, custom_height, custom_font, created_at
		 FROM certificate_templates WHERE id = $1`, id).Scan(
		&t.ID, &t.Title, &t.Body, &t.TemplateCSS, &t.PageSize, &t.Orientation, &t.Font,
		&t.CustomWidth, &t.CustomHeight, &t.CustomFont, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PutTemplate inserts t, or upserts it when t.ID is set. An explicit ID
// moves the id sequence past it so later inserts do not collide.
func (s *Store) PutTemplate(ctx context.Context, t *storage.TemplateRecord) (int64, error) {
	var id int64
	if t.ID == 0 {
		err := s.pool.QueryRow(ctx,
			`INSERT INTO certificate_templates
			 (title, body, template_css, page_size, orientation, font, custom_width, custom_height, custom_font, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id`,
			t.Title, t.Body, t.TemplateCSS, t.PageSize, t.Orientation, t.Font,
			t.CustomWidth, t.CustomHeight, t.CustomFont, t.CreatedAt).Scan(&id)
		return id, err
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO certificate_templates
			 (id, title, body, template_css, page_size, orientation, font, custom_width, custom_height, custom_font, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (id) DO UPDATE SET title = $2, body = $3, template_css = $4, page_size = $5,
			   orientation = $6, font = $7, custom_width = $8, custom_height = $9, custom_font = $10`,
			t.ID, t.Title, t.Body, t.TemplateCSS, t.PageSize, t.Orientation, t.Font,
			t.CustomWidth, t.CustomHeight, t.CustomFont, t.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`SELECT setval(pg_get_serial_sequence('certificate_templates', 'id'),
			   GREATEST($1::bigint, (SELECT MAX(id) FROM certificate_templates)))`,
			t.ID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("storing template %d: %w", t.ID, err)
	}
	return t.ID, nil
}
