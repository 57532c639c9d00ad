package sqlite

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/natefinch/atomic"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// ImportResult counts what Import did with each line of a JSONL file.
type ImportResult struct {
	Inserted  int
	Skipped   int // name already stored
	Malformed int
}

// Export writes every record of schemaName to path, one JSON object per
// line, ordered by name. Child rows are embedded under their table field.
// The file is replaced atomically.
func (b *Backend) Export(ctx context.Context, schemaName, path string) (int, error) {
	recs, err := b.GetAll(ctx, schemaName, types.QueryOptions{OrderBy: types.FieldName, Order: types.OrderAsc})
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	for _, r := range recs {
		full, err := b.Get(ctx, schemaName, r.String(types.FieldName))
		if err != nil {
			return 0, err
		}
		line, err := json.Marshal(full)
		if err != nil {
			return 0, fmt.Errorf("encoding %s %s: %w", schemaName, r.String(types.FieldName), err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	b.log.Infow("exported records", "schema", schemaName, "count", len(recs), "path", path)
	return len(recs), nil
}

// Import inserts the records in the JSONL file at path into schemaName.
// Blank lines are ignored; lines that are not JSON objects are counted as
// malformed and skipped. Records whose name is already stored are left
// alone. Values are written as given, without document validation.
func (b *Backend) Import(ctx context.Context, schemaName, path string) (ImportResult, error) {
	var res ImportResult
	s, err := b.SchemaMap().Get(schemaName)
	if err != nil {
		return res, err
	}
	if !s.HasTable() || s.IsChild {
		return res, types.NewValueError("cannot import into %s", schemaName)
	}

	lines, err := readJSONL(path)
	if err != nil {
		return res, err
	}
	for _, line := range lines {
		var rec types.Record
		if err := json.Unmarshal(line, &rec); err != nil || rec == nil {
			res.Malformed++
			continue
		}
		rec = normalizeJSON(rec).(types.Record)
		if name := rec.String(types.FieldName); name != "" {
			ok, err := b.Exists(ctx, schemaName, name)
			if err != nil {
				return res, err
			}
			if ok {
				res.Skipped++
				continue
			}
		}
		if _, err := b.Insert(ctx, schemaName, rec); err != nil {
			return res, fmt.Errorf("importing %s %s: %w", schemaName, rec.String(types.FieldName), err)
		}
		res.Inserted++
	}
	b.log.Infow("imported records", "schema", schemaName,
		"inserted", res.Inserted, "skipped", res.Skipped, "malformed", res.Malformed)
	return res, nil
}

// readJSONL returns the non-empty lines of the file at path.
func readJSONL(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var lines [][]byte
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			lines = append(lines, trimmed)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
}

// normalizeJSON maps decoded JSON onto storage scalars: integral numbers
// become int64 and nested objects become records.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case map[string]any:
		return normalizeJSON(types.Record(t))
	case types.Record:
		for k, item := range t {
			t[k] = normalizeJSON(item)
		}
		return t
	case []any:
		rows := make([]types.Record, 0, len(t))
		for _, item := range t {
			if r, ok := normalizeJSON(item).(types.Record); ok {
				rows = append(rows, r)
			}
		}
		return rows
	}
	return v
}
