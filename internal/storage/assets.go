package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ramonehamilton/VAB-Companion/internal/assets"
)

// Service provides high-level operations for storing and retrieving asset
// records. The store is the source of truth for content hashes: every write
// recomputes the hash from the fields the normalizer consumes.
type Service struct {
	db *DB
}

// NewService creates a new storage service.
func NewService(db *DB) *Service {
	return &Service{db: db}
}

// UpsertAsset saves or updates a product record. The content hash and
// last-updated timestamp are maintained here, not by the caller.
func (s *Service) UpsertAsset(ctx context.Context, a *assets.Asset) error {
	a.ContentHash = assets.ComputeContentHash(a)
	a.LastUpdated = time.Now().UTC()

	query := `
		INSERT INTO products (
			sku, name, artists, category, tags, compatible_figures, description,
			url, image_url, mature, source, content_hash, last_updated, enriched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET
			name = excluded.name,
			artists = excluded.artists,
			category = excluded.category,
			tags = excluded.tags,
			compatible_figures = excluded.compatible_figures,
			description = excluded.description,
			url = excluded.url,
			image_url = excluded.image_url,
			mature = excluded.mature,
			source = excluded.source,
			content_hash = excluded.content_hash,
			last_updated = excluded.last_updated,
			enriched_at = excluded.enriched_at
	`

	_, err := s.db.Conn().ExecContext(ctx, query,
		a.SKU, a.Name, marshalList(a.Artists), nullString(a.Category),
		marshalList(a.Tags), marshalList(a.CompatibleFigures), nullString(a.Description),
		nullString(a.URL), nullString(a.ImageURL), a.Mature, int(a.Source),
		a.ContentHash, a.LastUpdated, a.EnrichedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", a.SKU, err)
	}
	return nil
}

// UpsertAssets saves a batch of records in one transaction.
func (s *Service) UpsertAssets(ctx context.Context, records []*assets.Asset) error {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (
			sku, name, artists, category, tags, compatible_figures, description,
			url, image_url, mature, source, content_hash, last_updated, enriched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET
			name = excluded.name,
			artists = excluded.artists,
			category = excluded.category,
			tags = excluded.tags,
			compatible_figures = excluded.compatible_figures,
			description = excluded.description,
			url = excluded.url,
			image_url = excluded.image_url,
			mature = excluded.mature,
			source = excluded.source,
			content_hash = excluded.content_hash,
			last_updated = excluded.last_updated,
			enriched_at = excluded.enriched_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, a := range records {
		a.ContentHash = assets.ComputeContentHash(a)
		a.LastUpdated = now
		_, err := stmt.ExecContext(ctx,
			a.SKU, a.Name, marshalList(a.Artists), nullString(a.Category),
			marshalList(a.Tags), marshalList(a.CompatibleFigures), nullString(a.Description),
			nullString(a.URL), nullString(a.ImageURL), a.Mature, int(a.Source),
			a.ContentHash, a.LastUpdated, a.EnrichedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert asset %s: %w", a.SKU, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert batch: %w", err)
	}
	return nil
}

const assetColumns = `
	sku, name, artists, category, tags, compatible_figures, description,
	url, image_url, mature, source, content_hash, last_updated, enriched_at
`

// GetAsset retrieves a product by SKU. Returns nil when not found.
func (s *Service) GetAsset(ctx context.Context, sku string) (*assets.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM products WHERE sku = ?`

	a, err := scanAsset(s.db.Conn().QueryRowContext(ctx, query, sku))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", sku, err)
	}
	return a, nil
}

// ListAssets retrieves all products ordered by SKU.
func (s *Service) ListAssets(ctx context.Context) ([]*assets.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM products ORDER BY sku`
	return s.queryAssets(ctx, query)
}

// ListAssetsChangedSince retrieves products updated or enriched after the
// given checkpoint, ordered by SKU.
func (s *Service) ListAssetsChangedSince(ctx context.Context, since time.Time) ([]*assets.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM products
		WHERE last_updated > ? OR (enriched_at IS NOT NULL AND enriched_at > ?)
		ORDER BY sku`
	return s.queryAssets(ctx, query, since, since)
}

// DeleteAsset removes a product by SKU.
func (s *Service) DeleteAsset(ctx context.Context, sku string) error {
	_, err := s.db.Conn().ExecContext(ctx, `DELETE FROM products WHERE sku = ?`, sku)
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", sku, err)
	}
	return nil
}

// CountAssets returns the number of products in the store.
func (s *Service) CountAssets(ctx context.Context) (int, error) {
	var count int
	err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return count, nil
}

// SetCheckpoint records a named timestamp, e.g. when the vector index last
// consumed the store or when the DAZ export was last ingested.
func (s *Service) SetCheckpoint(ctx context.Context, name string, at time.Time) error {
	query := `
		INSERT INTO checkpoints (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.Conn().ExecContext(ctx, query, name, at.UTC()); err != nil {
		return fmt.Errorf("failed to set checkpoint %s: %w", name, err)
	}
	return nil
}

// GetCheckpoint returns a named timestamp. The second return value is false
// when the checkpoint has never been set.
func (s *Service) GetCheckpoint(ctx context.Context, name string) (time.Time, bool, error) {
	var at time.Time
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT value FROM checkpoints WHERE name = ?`, name).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get checkpoint %s: %w", name, err)
	}
	return at, true, nil
}

func (s *Service) queryAssets(ctx context.Context, query string, args ...interface{}) ([]*assets.Asset, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []*assets.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return list, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row scanner) (*assets.Asset, error) {
	var a assets.Asset
	var artists, tags, figures, category, desc, url, imageURL sql.NullString
	var source int

	err := row.Scan(
		&a.SKU, &a.Name, &artists, &category, &tags, &figures, &desc,
		&url, &imageURL, &a.Mature, &source, &a.ContentHash, &a.LastUpdated, &a.EnrichedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Artists = unmarshalList(artists)
	a.Tags = unmarshalList(tags)
	a.CompatibleFigures = unmarshalList(figures)
	a.Category = category.String
	a.Description = desc.String
	a.URL = url.String
	a.ImageURL = imageURL.String
	a.Source = assets.SourceKind(source)
	return &a, nil
}

// marshalList encodes a string slice as JSON; empty slices become NULL so
// absence stays distinguishable from an empty list.
func marshalList(values []string) interface{} {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

func unmarshalList(value sql.NullString) []string {
	if !value.Valid || value.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(value.String), &list); err != nil {
		return nil
	}
	return list
}

func nullString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
