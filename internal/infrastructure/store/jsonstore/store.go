// Package jsonstore persists simulant records as JSON table files: one
// simulant table with metadata columns and three composition tables with
// one row per component.  Populated values are never overwritten, and every
// table file is copied to a timestamped backup before it is first rewritten.
package jsonstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Config locates the table files.
type Config struct {
	DataDir string `mapstructure:"data_dir"`
	// BackupDir defaults to DataDir.
	BackupDir string `mapstructure:"backup_dir"`
}

// BackupMirror copies a backup file elsewhere.  Failures are logged.
type BackupMirror interface {
	Mirror(ctx context.Context, path string) error
}

// Option configures a Store.
type Option func(*Store)

// WithBackupMirror uploads every backup through m.
func WithBackupMirror(m BackupMirror) Option { return func(s *Store) { s.mirror = m } }

// WithClock replaces time.Now for backup names.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Store implements domain.Maintainer over JSON files.  It is safe for
// concurrent use within one process; nothing coordinates separate processes.
type Store struct {
	mu        sync.Mutex
	dir       string
	backupDir string
	backedUp  map[string]bool
	mirror    BackupMirror
	now       func() time.Time
	logger    logging.Logger
}

var _ domain.Maintainer = (*Store)(nil)

// Open prepares a store over cfg.DataDir, creating it when missing.
func Open(cfg Config, logger logging.Logger, opts ...Option) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, errors.InvalidParam("jsonstore: data_dir required")
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = cfg.DataDir
	}
	for _, d := range []string{cfg.DataDir, cfg.BackupDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "create directory").WithDetail(d)
		}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Store{
		dir:       cfg.DataDir,
		backupDir: cfg.BackupDir,
		backedUp:  make(map[string]bool),
		now:       time.Now,
		logger:    logger.Named("jsonstore"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) path(file string) string { return filepath.Join(s.dir, file) }

// ---------------------------------------------------------------------------
// Backups
// ---------------------------------------------------------------------------

// backup copies file to <stem>_backup_YYYYMMDD_HHMMSS.json.  With force
// false only the first rewrite of each file per Store is backed up.
func (s *Store) backup(ctx context.Context, file string, force bool) error {
	if s.backedUp[file] && !force {
		return nil
	}
	src := s.path(file)
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		s.backedUp[file] = true
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "open table for backup").WithDetail(src)
	}
	defer in.Close()

	stem := strings.TrimSuffix(file, filepath.Ext(file))
	dst := filepath.Join(s.backupDir, stem+"_backup_"+s.now().Format("20060102_150405")+".json")
	if _, err := os.Stat(dst); err == nil {
		// A backup from the same second already holds an earlier state.
		s.backedUp[file] = true
		return nil
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "create backup").WithDetail(dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "copy backup").WithDetail(dst)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "close backup").WithDetail(dst)
	}
	s.backedUp[file] = true
	s.logger.Info("backup created", logging.String("table", file), logging.String("path", dst))

	if s.mirror != nil {
		if err := s.mirror.Mirror(ctx, dst); err != nil {
			s.logger.Warn("backup mirror failed", logging.String("path", dst), logging.Err(err))
		}
	}
	return nil
}

func (s *Store) save(ctx context.Context, file string, v interface{}, force bool) error {
	if err := s.backup(ctx, file, force); err != nil {
		return err
	}
	return writeJSON(s.path(file), v)
}

// ---------------------------------------------------------------------------
// Simulant table
// ---------------------------------------------------------------------------

func (s *Store) loadSimulants() ([]simulantRow, error) {
	var rows []simulantRow
	if err := readJSON(s.path(FileSimulants), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func findSimulant(rows []simulantRow, id string) simulantRow {
	for _, r := range rows {
		if r.id() == id {
			return r
		}
	}
	return nil
}

// ListEntities returns the simulant table as entities.  Rows without a
// usable id or name are skipped.
func (s *Store) ListEntities(_ context.Context) ([]*domain.Entity, error) {
	s.mu.Lock()
	rows, err := s.loadSimulants()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Entity, 0, len(rows))
	for _, r := range rows {
		e, err := domain.NewEntity(r.id(), r.name(), r.aliases()...)
		if err != nil {
			s.logger.Warn("skipping simulant row", logging.String("simulant_id", r.id()), logging.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Register adds a simulant and returns it.  An existing name (ignoring
// case) returns the existing entity.
func (s *Store) Register(ctx context.Context, name string, aliases ...string) (*domain.Entity, error) {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.loadSimulants()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if strings.EqualFold(r.name(), name) {
			return domain.NewEntity(r.id(), r.name(), r.aliases()...)
		}
		ids = append(ids, r.id())
	}
	e, err := domain.NewEntity(nextID("S", ids), name, aliases...)
	if err != nil {
		return nil, err
	}
	row := simulantRow{"simulant_id": e.ID, "name": e.Name}
	if len(aliases) > 0 {
		row["aliases"] = aliases
	}
	if err := s.save(ctx, FileSimulants, append(rows, row), false); err != nil {
		return nil, err
	}
	s.logger.Info("simulant registered", logging.String("simulant_id", e.ID), logging.String("name", e.Name))
	return e, nil
}

// Simulant returns the raw metadata columns of one simulant.
func (s *Store) Simulant(_ context.Context, id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.loadSimulants()
	if err != nil {
		return nil, err
	}
	row := findSimulant(rows, id)
	if row == nil {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "simulant not found").WithDetail(id)
	}
	out := make(map[string]string, len(row))
	for k, v := range row {
		if _, isList := v.([]interface{}); isList {
			continue
		}
		out[k] = stringValue(v)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Upsert
// ---------------------------------------------------------------------------

// Upsert writes values into empty fields.  Populated fields that differ are
// reported as conflicts; nothing is ever overwritten.
func (s *Store) Upsert(ctx context.Context, id string, cat domain.Category, values map[string]string) (map[string]domain.FieldResult, error) {
	if _, err := domain.ParseCategory(string(cat)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.loadSimulants()
	if err != nil {
		return nil, err
	}
	row := findSimulant(rows, id)
	if row == nil {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "simulant not found").WithDetail(id)
	}
	if cat == domain.CategoryMetadata {
		return s.upsertMetadata(ctx, rows, row, values)
	}
	return s.upsertComponents(ctx, id, cat, values)
}

// numericColumns are stored as JSON numbers.
var numericColumns = map[string]bool{
	domain.ColumnQualityScore: true,
	simulant.MetaTonsProduced: true,
}

func (s *Store) upsertMetadata(ctx context.Context, rows []simulantRow, row simulantRow, values map[string]string) (map[string]domain.FieldResult, error) {
	results := make(map[string]domain.FieldResult, len(values))
	changed := false
	for _, key := range simulant.SortedKeys(values) {
		v := strings.TrimSpace(values[key])
		if !domain.IsMetadataColumn(key) || v == "" {
			results[key] = domain.FieldResult{Field: key, Status: domain.FieldInvalid, Reason: "unknown column or empty value"}
			continue
		}
		existing := stringValue(row[key])
		switch {
		case !domain.IsEmptyValue(existing) && domain.SameValue(existing, v):
			results[key] = domain.FieldResult{Field: key, Status: domain.FieldUnchanged, Existing: existing}
		case !domain.IsEmptyValue(existing):
			results[key] = domain.FieldResult{Field: key, Status: domain.FieldConflict, Existing: existing, Reason: "conflict"}
		default:
			if f, err := strconv.ParseFloat(v, 64); err == nil && numericColumns[key] {
				row[key] = f
			} else {
				row[key] = domain.WithUnit(key, v)
			}
			results[key] = domain.FieldResult{Field: key, Status: domain.FieldWritten}
			changed = true
		}
	}
	if changed {
		if err := s.save(ctx, FileSimulants, rows, false); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *Store) upsertComponents(ctx context.Context, id string, cat domain.Category, values map[string]string) (map[string]domain.FieldResult, error) {
	tbl, err := s.loadTable(cat)
	if err != nil {
		return nil, err
	}
	results := make(map[string]domain.FieldResult, len(values))
	changed := false
	for _, name := range simulant.SortedKeys(values) {
		v, err := strconv.ParseFloat(strings.TrimSpace(values[name]), 64)
		if err != nil || v < 0 || v > 100 {
			results[name] = domain.FieldResult{Field: name, Status: domain.FieldInvalid, Reason: "not a percentage"}
			continue
		}
		v = simulant.Round2(v)
		c := tbl.find(id, name)
		switch {
		case c != nil && c.value != nil && simulant.Round2(*c.value) == v:
			results[name] = domain.FieldResult{Field: name, Status: domain.FieldUnchanged, Existing: simulant.FormatNumber(*c.value)}
		case c != nil && c.value != nil:
			results[name] = domain.FieldResult{Field: name, Status: domain.FieldConflict, Existing: simulant.FormatNumber(*c.value), Reason: "conflict"}
		case c != nil:
			tbl.setValue(c.id, v)
			results[name] = domain.FieldResult{Field: name, Status: domain.FieldWritten}
			changed = true
		default:
			tbl.add(id, name, v)
			results[name] = domain.FieldResult{Field: name, Status: domain.FieldWritten}
			changed = true
		}
	}
	if changed {
		if err := s.save(ctx, tbl.file, tbl.rows(), false); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Components returns the non-null values of one simulant's category.  A
// name stored on several rows reports its largest value.
func (s *Store) Components(_ context.Context, id string, cat domain.Category) (map[string]float64, error) {
	if !cat.IsComposition() {
		return nil, errors.New(errors.ErrCodeCategoryInvalid, "not a composition category").WithDetail(string(cat))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl, err := s.loadTable(cat)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, c := range tbl.items {
		if c.simulant != id || c.value == nil {
			continue
		}
		if cur, ok := out[c.name]; !ok || *c.value > cur {
			out[c.name] = *c.value
		}
	}
	return out, nil
}

// ReplaceComponents swaps one simulant's rows of a category for values.
// Zero and negative mineral values are not stored.  Rows with a null value
// are kept unless values names them.  The table is always backed up first.
func (s *Store) ReplaceComponents(ctx context.Context, id string, cat domain.Category, values map[string]float64) error {
	if !cat.IsComposition() {
		return errors.New(errors.ErrCodeCategoryInvalid, "not a composition category").WithDetail(string(cat))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl, err := s.loadTable(cat)
	if err != nil {
		return err
	}
	tbl.removeValued(id, values)
	for _, name := range simulant.SortedKeys(values) {
		v := values[name]
		if cat == domain.CategoryMineral && v <= 0 {
			continue
		}
		tbl.add(id, name, simulant.Round2(v))
	}
	if err := s.save(ctx, tbl.file, tbl.rows(), true); err != nil {
		return err
	}
	s.logger.Info("components replaced",
		logging.String("simulant_id", id), logging.String("category", string(cat)), logging.Int("rows", len(values)))
	return nil
}

// ---------------------------------------------------------------------------
// Composition tables
// ---------------------------------------------------------------------------

// table is a loaded composition file.  Rows of other component types in
// composition.json are carried through untouched.
type table struct {
	cat    domain.Category
	file   string
	prefix string
	items  []component
	other  []mineralRow
}

func (s *Store) loadTable(cat domain.Category) (*table, error) {
	t := &table{cat: cat}
	switch cat {
	case domain.CategoryMineral:
		t.file, t.prefix = FileMinerals, prefixMineral
		var rows []mineralRow
		if err := readJSON(s.path(t.file), &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.ComponentType != "" && r.ComponentType != "mineral" {
				t.other = append(t.other, r)
				continue
			}
			t.items = append(t.items, component{id: r.CompositionID, simulant: r.SimulantID, name: r.ComponentName, value: r.ValuePct})
		}
	case domain.CategoryChemical:
		t.file, t.prefix = FileChemicals, prefixChemical
		var rows []chemicalRow
		if err := readJSON(s.path(t.file), &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			t.items = append(t.items, component{id: r.CompositionID, simulant: r.SimulantID, name: r.ComponentName, value: r.ValueWtPct})
		}
	case domain.CategoryMineralGroup:
		t.file, t.prefix = FileMineralGroups, prefixGroup
		var rows []groupRow
		if err := readJSON(s.path(t.file), &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			t.items = append(t.items, component{id: r.GroupID, simulant: r.SimulantID, name: r.GroupName, value: r.ValuePct})
		}
	default:
		return nil, errors.New(errors.ErrCodeCategoryInvalid, "not a composition category").WithDetail(string(cat))
	}
	return t, nil
}

func (t *table) find(simulantID, name string) *component {
	for i := range t.items {
		if t.items[i].simulant == simulantID && strings.EqualFold(t.items[i].name, name) {
			return &t.items[i]
		}
	}
	return nil
}

func (t *table) setValue(id string, v float64) {
	for i := range t.items {
		if t.items[i].id == id {
			t.items[i].value = &v
		}
	}
}

func (t *table) ids() []string {
	out := make([]string, 0, len(t.items)+len(t.other))
	for _, c := range t.items {
		out = append(out, c.id)
	}
	for _, r := range t.other {
		out = append(out, r.CompositionID)
	}
	return out
}

func (t *table) add(simulantID, name string, v float64) {
	t.items = append(t.items, component{id: nextID(t.prefix, t.ids()), simulant: simulantID, name: name, value: &v})
}

// removeValued drops a simulant's rows except null rows whose name is not
// in replace.
func (t *table) removeValued(id string, replace map[string]float64) {
	kept := t.items[:0]
	for _, c := range t.items {
		if c.simulant != id {
			kept = append(kept, c)
			continue
		}
		if _, named := replace[c.name]; c.value == nil && !named {
			kept = append(kept, c)
		}
	}
	t.items = kept
}

// rows renders the table in its on-disk row type, ordered by id.
func (t *table) rows() interface{} {
	items := append([]component(nil), t.items...)
	sort.SliceStable(items, func(i, j int) bool { return idLess(items[i].id, items[j].id) })
	switch t.cat {
	case domain.CategoryMineral:
		out := make([]mineralRow, 0, len(items)+len(t.other))
		for _, c := range items {
			out = append(out, mineralRow{CompositionID: c.id, SimulantID: c.simulant, ComponentType: "mineral", ComponentName: c.name, ValuePct: c.value})
		}
		out = append(out, t.other...)
		sort.SliceStable(out, func(i, j int) bool { return idLess(out[i].CompositionID, out[j].CompositionID) })
		return out
	case domain.CategoryChemical:
		out := make([]chemicalRow, 0, len(items))
		for _, c := range items {
			out = append(out, chemicalRow{CompositionID: c.id, SimulantID: c.simulant, ComponentType: "oxide", ComponentName: c.name, ValueWtPct: c.value})
		}
		return out
	default:
		out := make([]groupRow, 0, len(items))
		for _, c := range items {
			out = append(out, groupRow{GroupID: c.id, SimulantID: c.simulant, GroupName: c.name, ValuePct: c.value})
		}
		return out
	}
}

// idLess orders "C9" before "C10".
func idLess(a, b string) bool {
	pa, na := splitID(a)
	pb, nb := splitID(b)
	if pa != pb {
		return pa < pb
	}
	return na < nb
}

func splitID(id string) (string, int) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	n, _ := strconv.Atoi(id[i:])
	return id[:i], n
}
