package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	TxStarter
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SimulantStore implements domain.Maintainer on PostgreSQL.  Metadata
// columns live in simulants.metadata; composition values are rows of
// composition_components keyed by (simulant, category, lower(name)).
type SimulantStore struct {
	db     DB
	logger logging.Logger
}

var _ domain.Maintainer = (*SimulantStore)(nil)

// NewSimulantStore wraps db.
func NewSimulantStore(db DB, logger logging.Logger) *SimulantStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SimulantStore{db: db, logger: logger.Named("postgres.simulants")}
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// ListEntities returns every simulant ordered by id.
func (s *SimulantStore) ListEntities(ctx context.Context) ([]*domain.Entity, error) {
	rows, err := s.db.Query(ctx, `SELECT simulant_id, name, aliases FROM simulants ORDER BY simulant_id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list simulants")
	}
	defer rows.Close()

	var out []*domain.Entity
	for rows.Next() {
		var id, name string
		var aliases []string
		if err := rows.Scan(&id, &name, &aliases); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan simulant")
		}
		e, err := domain.NewEntity(id, name, aliases...)
		if err != nil {
			s.logger.Warn("skipping simulant row", logging.String("simulant_id", id), logging.Err(err))
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate simulants")
	}
	return out, nil
}

// Register inserts a simulant with the next S%03d id.  An existing name
// (ignoring case) returns the existing entity.
func (s *SimulantStore) Register(ctx context.Context, name string, aliases ...string) (*domain.Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New(errors.ErrCodeCatalogInvalid, "entity name is required")
	}
	if aliases == nil {
		aliases = []string{}
	}
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO simulants (simulant_id, name, aliases)
		SELECT 'S' || lpad((COALESCE(MAX(substring(simulant_id FROM 2)::int), 0) + 1)::text, 3, '0'), $1, $2
		FROM simulants WHERE simulant_id ~ '^S[0-9]+$'
		ON CONFLICT DO NOTHING
		RETURNING simulant_id`, name, aliases).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.db.QueryRow(ctx, `SELECT simulant_id, aliases FROM simulants WHERE lower(name) = lower($1)`, name).Scan(&id, &aliases)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeConflict, "simulant id taken concurrently").WithDetail(name)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "register simulant").WithDetail(name)
	}
	return domain.NewEntity(id, name, aliases...)
}

// Simulant returns the name and metadata columns of one simulant.
func (s *SimulantStore) Simulant(ctx context.Context, id string) (map[string]string, error) {
	var name string
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT name, metadata FROM simulants WHERE simulant_id = $1`, id).Scan(&name, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "simulant not found").WithDetail(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "get simulant").WithDetail(id)
	}
	meta, err := decodeMetadata(raw)
	if err != nil {
		return nil, err
	}
	out := map[string]string{"simulant_id": id, "name": name}
	for k, v := range meta {
		out[k] = metaString(v)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Upsert
// ─────────────────────────────────────────────────────────────────────────────

// Upsert fills empty fields in one transaction.  The simulant row is locked
// so concurrent writers to one simulant are serialized.
func (s *SimulantStore) Upsert(ctx context.Context, id string, cat domain.Category, values map[string]string) (map[string]domain.FieldResult, error) {
	if _, err := domain.ParseCategory(string(cat)); err != nil {
		return nil, err
	}
	var results map[string]domain.FieldResult
	err := WithTransaction(ctx, s.db, func(tx pgx.Tx, ctx context.Context) error {
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT metadata FROM simulants WHERE simulant_id = $1 FOR UPDATE`, id).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.New(errors.ErrCodeRecordNotFound, "simulant not found").WithDetail(id)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "lock simulant").WithDetail(id)
		}
		if cat == domain.CategoryMetadata {
			results, err = s.upsertMetadata(ctx, tx, id, raw, values)
		} else {
			results, err = s.upsertComponents(ctx, tx, id, cat, values)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SimulantStore) upsertMetadata(ctx context.Context, tx pgx.Tx, id string, raw []byte, values map[string]string) (map[string]domain.FieldResult, error) {
	meta, err := decodeMetadata(raw)
	if err != nil {
		return nil, err
	}
	results, changed := planMetadata(meta, values)
	if !changed {
		return results, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode metadata")
	}
	if _, err := tx.Exec(ctx, `UPDATE simulants SET metadata = $2, updated_at = NOW() WHERE simulant_id = $1`, id, data); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "update metadata").WithDetail(id)
	}
	return results, nil
}

func (s *SimulantStore) upsertComponents(ctx context.Context, tx pgx.Tx, id string, cat domain.Category, values map[string]string) (map[string]domain.FieldResult, error) {
	rows, err := tx.Query(ctx, `
		SELECT component_name, value_pct FROM composition_components
		WHERE simulant_id = $1 AND category = $2 FOR UPDATE`, id, string(cat))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "load components").WithDetail(id)
	}
	var existing []storedComponent
	for rows.Next() {
		var c storedComponent
		if err := rows.Scan(&c.name, &c.value); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan component")
		}
		existing = append(existing, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate components")
	}

	plan := planComponents(existing, values)
	for _, name := range simulant.SortedKeys(plan.fills) {
		if _, err := tx.Exec(ctx, `
			UPDATE composition_components SET value_pct = $4, updated_at = NOW()
			WHERE simulant_id = $1 AND category = $2 AND lower(component_name) = lower($3) AND value_pct IS NULL`,
			id, string(cat), name, plan.fills[name]); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "fill component").WithDetail(name)
		}
	}
	for _, name := range simulant.SortedKeys(plan.inserts) {
		if _, err := tx.Exec(ctx, `
			INSERT INTO composition_components (simulant_id, category, component_name, value_pct)
			VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			id, string(cat), name, plan.inserts[name]); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "insert component").WithDetail(name)
		}
	}
	return plan.results, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Components
// ─────────────────────────────────────────────────────────────────────────────

// Components returns the non-null values of one simulant's category.
func (s *SimulantStore) Components(ctx context.Context, id string, cat domain.Category) (map[string]float64, error) {
	if !cat.IsComposition() {
		return nil, errors.New(errors.ErrCodeCategoryInvalid, "not a composition category").WithDetail(string(cat))
	}
	rows, err := s.db.Query(ctx, `
		SELECT component_name, MAX(value_pct) FROM composition_components
		WHERE simulant_id = $1 AND category = $2 AND value_pct IS NOT NULL
		GROUP BY component_name`, id, string(cat))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list components").WithDetail(id)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var v float64
		if err := rows.Scan(&name, &v); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan component")
		}
		out[name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate components")
	}
	return out, nil
}

// ReplaceComponents snapshots the current rows into component_backups,
// then swaps them for values.  Zero and negative mineral values are not
// stored.  Rows with a null value are kept unless values names them.
func (s *SimulantStore) ReplaceComponents(ctx context.Context, id string, cat domain.Category, values map[string]float64) error {
	if !cat.IsComposition() {
		return errors.New(errors.ErrCodeCategoryInvalid, "not a composition category").WithDetail(string(cat))
	}
	err := WithTransaction(ctx, s.db, func(tx pgx.Tx, ctx context.Context) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM simulants WHERE simulant_id = $1)`, id).Scan(&exists); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "check simulant").WithDetail(id)
		}
		if !exists {
			return errors.New(errors.ErrCodeRecordNotFound, "simulant not found").WithDetail(id)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO component_backups (simulant_id, category, snapshot)
			SELECT $1, $2, COALESCE(jsonb_agg(jsonb_build_object(
				'component_name', component_name, 'value_pct', value_pct) ORDER BY id), '[]'::jsonb)
			FROM composition_components WHERE simulant_id = $1 AND category = $2`, id, string(cat)); err != nil {
			return errors.Wrap(err, errors.ErrCodeBackupFailed, "snapshot components").WithDetail(id)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM composition_components
			WHERE simulant_id = $1 AND category = $2
			AND (value_pct IS NOT NULL OR component_name = ANY($3))`,
			id, string(cat), simulant.SortedKeys(values)); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "delete components").WithDetail(id)
		}

		batch := &pgx.Batch{}
		for _, name := range simulant.SortedKeys(values) {
			v := values[name]
			if cat == domain.CategoryMineral && v <= 0 {
				continue
			}
			batch.Queue(`INSERT INTO composition_components (simulant_id, category, component_name, value_pct) VALUES ($1, $2, $3, $4)`,
				id, string(cat), name, simulant.Round2(v))
		}
		if batch.Len() == 0 {
			return nil
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert component").WithDetail(id)
			}
		}
		if err := br.Close(); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "close batch")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("components replaced",
		logging.String("simulant_id", id), logging.String("category", string(cat)), logging.Int("rows", len(values)))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Write planning
// ─────────────────────────────────────────────────────────────────────────────

type storedComponent struct {
	name  string
	value *float64
}

// componentPlan splits a write into fills of existing null rows and inserts
// of new rows.  fills is keyed by the stored component name.
type componentPlan struct {
	results map[string]domain.FieldResult
	fills   map[string]float64
	inserts map[string]float64
}

func planComponents(existing []storedComponent, values map[string]string) componentPlan {
	byName := make(map[string]storedComponent, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(c.name)] = c
	}
	p := componentPlan{
		results: make(map[string]domain.FieldResult, len(values)),
		fills:   make(map[string]float64),
		inserts: make(map[string]float64),
	}
	for name, raw := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || v < 0 || v > 100 {
			p.results[name] = domain.FieldResult{Field: name, Status: domain.FieldInvalid, Reason: "not a percentage"}
			continue
		}
		v = simulant.Round2(v)
		c, found := byName[strings.ToLower(name)]
		switch {
		case !found:
			p.inserts[name] = v
			p.results[name] = domain.FieldResult{Field: name, Status: domain.FieldWritten}
		case c.value == nil:
			p.fills[c.name] = v
			p.results[name] = domain.FieldResult{Field: name, Status: domain.FieldWritten}
		case simulant.Round2(*c.value) == v:
			p.results[name] = domain.FieldResult{Field: name, Status: domain.FieldUnchanged, Existing: simulant.FormatNumber(*c.value)}
		default:
			p.results[name] = domain.FieldResult{Field: name, Status: domain.FieldConflict, Existing: simulant.FormatNumber(*c.value), Reason: "conflict"}
		}
	}
	return p
}

// numericColumns are stored as JSON numbers.
var numericColumns = map[string]bool{
	domain.ColumnQualityScore: true,
	simulant.MetaTonsProduced: true,
}

// planMetadata writes values into meta where the column is empty and
// reports whether meta changed.
func planMetadata(meta map[string]interface{}, values map[string]string) (map[string]domain.FieldResult, bool) {
	results := make(map[string]domain.FieldResult, len(values))
	changed := false
	for key, raw := range values {
		v := strings.TrimSpace(raw)
		if !domain.IsMetadataColumn(key) || v == "" {
			results[key] = domain.FieldResult{Field: key, Status: domain.FieldInvalid, Reason: "unknown column or empty value"}
			continue
		}
		existing := metaString(meta[key])
		switch {
		case domain.IsEmptyValue(existing):
			if f, err := strconv.ParseFloat(v, 64); err == nil && numericColumns[key] {
				meta[key] = f
			} else {
				meta[key] = domain.WithUnit(key, v)
			}
			results[key] = domain.FieldResult{Field: key, Status: domain.FieldWritten}
			changed = true
		case domain.SameValue(existing, v):
			results[key] = domain.FieldResult{Field: key, Status: domain.FieldUnchanged, Existing: existing}
		default:
			results[key] = domain.FieldResult{Field: key, Status: domain.FieldConflict, Existing: existing, Reason: "conflict"}
		}
	}
	return results, changed
}

func decodeMetadata(raw []byte) (map[string]interface{}, error) {
	meta := make(map[string]interface{})
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTableCorrupt, "decode metadata")
	}
	return meta, nil
}

func metaString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	data, _ := json.Marshal(v)
	return string(data)
}
