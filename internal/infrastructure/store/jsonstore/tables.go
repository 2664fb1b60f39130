package jsonstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// Table file names.
const (
	FileSimulants     = "simulant.json"
	FileMinerals      = "composition.json"
	FileChemicals     = "chemical_composition.json"
	FileMineralGroups = "mineral_groups.json"
)

// Row id prefixes.
const (
	prefixMineral  = "C"
	prefixChemical = "CH"
	prefixGroup    = "MG"
)

// simulantRow keeps unknown columns intact.
type simulantRow map[string]interface{}

func (r simulantRow) id() string   { return stringValue(r["simulant_id"]) }
func (r simulantRow) name() string { return stringValue(r["name"]) }

func (r simulantRow) aliases() []string {
	raw, ok := r["aliases"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		if s := stringValue(a); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type mineralRow struct {
	CompositionID string   `json:"composition_id"`
	SimulantID    string   `json:"simulant_id"`
	ComponentType string   `json:"component_type"`
	ComponentName string   `json:"component_name"`
	ValuePct      *float64 `json:"value_pct"`
}

type chemicalRow struct {
	CompositionID string   `json:"composition_id"`
	SimulantID    string   `json:"simulant_id"`
	ComponentType string   `json:"component_type"`
	ComponentName string   `json:"component_name"`
	ValueWtPct    *float64 `json:"value_wt_pct"`
}

type groupRow struct {
	GroupID    string   `json:"group_id"`
	SimulantID string   `json:"simulant_id"`
	GroupName  string   `json:"group_name"`
	ValuePct   *float64 `json:"value_pct"`
}

// component is the category-independent view of a composition row.
type component struct {
	id, simulant, name string
	value              *float64
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// stringValue renders a JSON-decoded scalar as text.  Null is "".
func stringValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	}
	return fmt.Sprint(v)
}

// nextID returns prefix followed by one more than the highest numeric
// suffix among ids, zero-padded to three digits.
func nextID(prefix string, ids []string) string {
	max := 0
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(id[len(prefix):])
		if err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, max+1)
}

func readJSON(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "read table").WithDetail(path)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeTableCorrupt, "decode table").WithDetail(path)
	}
	return nil
}

// writeJSON replaces path atomically.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode table").WithDetail(path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "create temp file").WithDetail(path)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeStorageError, "write table").WithDetail(path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "close table").WithDetail(path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "replace table").WithDetail(path)
	}
	return nil
}
