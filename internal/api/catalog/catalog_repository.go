package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sakatoku/sakarctic/internal/types"
)

// PGXPool is the subset of pgxpool.Pool the repository needs. Tests substitute
// a pgxmock pool.
type PGXPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ensure implementation satisfies the interface
var _ CatalogRepository = (*CatalogRepositoryImpl)(nil)

// CatalogRepository reads the candidate catalogs and persists assembled
// itineraries.
type CatalogRepository interface {
	DistinctCategories(ctx context.Context, kind types.CatalogKind) ([]string, error)
	ItemsByCategory(ctx context.Context, kind types.CatalogKind, filter types.CatalogFilter) ([]*types.CatalogItem, error)
	SaveItinerary(ctx context.Context, sessionID uuid.UUID, itinerary types.Itinerary) error
}

// CatalogRepositoryImpl provides the implementation for CatalogRepository.
type CatalogRepositoryImpl struct {
	logger *slog.Logger
	pgpool PGXPool
}

// NewCatalogRepository creates a new catalog repository instance.
func NewCatalogRepository(pgpool PGXPool, logger *slog.Logger) *CatalogRepositoryImpl {
	return &CatalogRepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

type catalogTable struct {
	name           string
	categoryColumn string
	resultTable    string
	hasSafety      bool
}

var catalogTables = map[types.CatalogKind]catalogTable{
	types.CatalogRestaurants: {
		name:           "restaurants",
		categoryColumn: "cuisine",
		resultTable:    "restaurants_result",
		hasSafety:      true,
	},
	types.CatalogTourSpots: {
		name:           "tour_spots",
		categoryColumn: "category",
		resultTable:    "tour_spots_result",
		hasSafety:      false,
	},
}

func tableFor(kind types.CatalogKind) (catalogTable, error) {
	table, ok := catalogTables[kind]
	if !ok {
		return catalogTable{}, fmt.Errorf("unknown catalog kind %q", kind)
	}
	return table, nil
}

// DistinctCategories lists the categories present in a catalog, sorted.
func (r *CatalogRepositoryImpl) DistinctCategories(ctx context.Context, kind types.CatalogKind) ([]string, error) {
	ctx, span := otel.Tracer("CatalogRepository").Start(ctx, "DistinctCategories")
	span.SetAttributes(attribute.String("catalog.kind", string(kind)))
	defer span.End()

	table, err := tableFor(kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unknown catalog kind")
		return nil, err
	}

	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s ORDER BY 1`, table.categoryColumn, table.name)
	rows, err := r.pgpool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query categories")
		return nil, fmt.Errorf("failed to query %s categories: %w", kind, err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}

	span.SetAttributes(attribute.Int("categories.count", len(categories)))
	span.SetStatus(codes.Ok, "Categories fetched")
	return categories, nil
}

// ItemsByCategory fetches the candidates of one category, skipping names
// already used elsewhere in the itinerary.
func (r *CatalogRepositoryImpl) ItemsByCategory(ctx context.Context, kind types.CatalogKind, filter types.CatalogFilter) ([]*types.CatalogItem, error) {
	ctx, span := otel.Tracer("CatalogRepository").Start(ctx, "ItemsByCategory")
	span.SetAttributes(
		attribute.String("catalog.kind", string(kind)),
		attribute.String("category", filter.Category),
		attribute.Int("excluded.count", len(filter.ExcludeNames)),
	)
	defer span.End()

	table, err := tableFor(kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unknown catalog kind")
		return nil, err
	}

	safetyColumn := "NULL::double precision"
	if table.hasSafety {
		safetyColumn = "sum_crime"
	}
	excluded := filter.ExcludeNames
	if excluded == nil {
		excluded = []string{}
	}

	query := fmt.Sprintf(`
        SELECT name, %s, website, latitude, longitude, web_summary,
               embedded_web_summary::text, %s
        FROM %s
        WHERE %s = $1 AND name <> ALL($2)
        ORDER BY name`,
		table.categoryColumn, safetyColumn, table.name, table.categoryColumn)

	rows, err := r.pgpool.Query(ctx, query, filter.Category, excluded)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query catalog items")
		return nil, fmt.Errorf("failed to query %s items: %w", kind, err)
	}
	defer rows.Close()

	var items []*types.CatalogItem
	for rows.Next() {
		var item types.CatalogItem
		var embeddingText *string
		if err := rows.Scan(&item.Name, &item.Category, &item.Website,
			&item.Latitude, &item.Longitude, &item.WebSummary,
			&embeddingText, &item.SafetyScore); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		if embeddingText != nil {
			item.Embedding, err = parseVector(*embeddingText)
			if err != nil {
				r.logger.WarnContext(ctx, "Skipping item with malformed embedding",
					slog.String("name", item.Name),
					slog.Any("error", err))
				continue
			}
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read catalog items: %w", err)
	}

	span.SetAttributes(attribute.Int("items.count", len(items)))
	span.SetStatus(codes.Ok, "Catalog items fetched")
	return items, nil
}

// SaveItinerary upserts the assembled slots for a session, one row per slot.
func (r *CatalogRepositoryImpl) SaveItinerary(ctx context.Context, sessionID uuid.UUID, itinerary types.Itinerary) error {
	ctx, span := otel.Tracer("CatalogRepository").Start(ctx, "SaveItinerary")
	span.SetAttributes(
		attribute.String("catalog.kind", string(itinerary.Kind)),
		attribute.Int("slots.count", len(itinerary.Slots)),
	)
	defer span.End()

	table, err := tableFor(itinerary.Kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unknown catalog kind")
		return err
	}

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to start transaction")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := fmt.Sprintf(`
        INSERT INTO %s (session_id, visit_time, name, category, website, latitude, longitude, score)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (session_id, visit_time) DO UPDATE SET
            name = EXCLUDED.name,
            category = EXCLUDED.category,
            website = EXCLUDED.website,
            latitude = EXCLUDED.latitude,
            longitude = EXCLUDED.longitude,
            score = EXCLUDED.score`, table.resultTable)

	for _, slot := range itinerary.Slots {
		if _, err := tx.Exec(ctx, query, sessionID, slot.VisitTime,
			slot.Item.Name, slot.Item.Category, slot.Item.Website,
			slot.Item.Latitude, slot.Item.Longitude, slot.Score); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to insert itinerary slot")
			return fmt.Errorf("failed to save slot %q: %w", slot.VisitTime, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to commit itinerary")
		return fmt.Errorf("failed to commit itinerary: %w", err)
	}

	span.SetStatus(codes.Ok, "Itinerary saved")
	return nil
}

// ItemsWithoutEmbeddings returns up to limit catalog rows whose web summary
// has not been embedded yet. Used by the backfill script, not the planner.
func (r *CatalogRepositoryImpl) ItemsWithoutEmbeddings(ctx context.Context, kind types.CatalogKind, limit int) ([]*types.CatalogItem, error) {
	ctx, span := otel.Tracer("CatalogRepository").Start(ctx, "ItemsWithoutEmbeddings")
	span.SetAttributes(attribute.String("catalog.kind", string(kind)))
	defer span.End()

	table, err := tableFor(kind)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	query := fmt.Sprintf(`
        SELECT name, %s, web_summary
        FROM %s
        WHERE embedded_web_summary IS NULL
        ORDER BY name
        LIMIT $1`, table.categoryColumn, table.name)

	rows, err := r.pgpool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query %s rows without embeddings: %w", kind, err)
	}
	defer rows.Close()

	var items []*types.CatalogItem
	for rows.Next() {
		var item types.CatalogItem
		if err := rows.Scan(&item.Name, &item.Category, &item.WebSummary); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read catalog rows: %w", err)
	}

	span.SetStatus(codes.Ok, "Rows without embeddings fetched")
	return items, nil
}

// UpdateEmbedding stores the embedding vector for one catalog row.
func (r *CatalogRepositoryImpl) UpdateEmbedding(ctx context.Context, kind types.CatalogKind, name string, embedding []float32) error {
	ctx, span := otel.Tracer("CatalogRepository").Start(ctx, "UpdateEmbedding")
	span.SetAttributes(
		attribute.String("catalog.kind", string(kind)),
		attribute.Int("embedding.dimension", len(embedding)),
	)
	defer span.End()

	table, err := tableFor(kind)
	if err != nil {
		span.RecordError(err)
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET embedded_web_summary = $1::vector WHERE name = $2`, table.name)
	tag, err := r.pgpool.Exec(ctx, query, formatVector(embedding), name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update embedding")
		return fmt.Errorf("failed to update embedding for %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no %s row named %q", kind, name)
	}

	span.SetStatus(codes.Ok, "Embedding updated")
	return nil
}

// formatVector renders the pgvector text representation "[0.1,0.2,...]".
func formatVector(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector decodes the pgvector text representation "[0.1,0.2,...]".
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vector := make([]float32, len(parts))
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", part, err)
		}
		vector[i] = float32(value)
	}
	return vector, nil
}
