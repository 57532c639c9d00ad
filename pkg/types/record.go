package types

// Record is a map of fieldname to value. Raw records carry storage scalars
// (string, int64, float64, nil) and []Record for table fields; document
// records carry typed values produced by the converter.
type Record map[string]any

// Clone returns a shallow copy of r. Nested child records are copied one
// level deep so that stamping child metadata does not leak into the caller's
// rows.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if rows, ok := v.([]Record); ok {
			cp := make([]Record, len(rows))
			for i, row := range rows {
				cp[i] = row.Clone()
			}
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// String returns the value of key if it is a non-empty string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Rows returns the child rows stored under key.
func (r Record) Rows(key string) []Record {
	switch v := r[key].(type) {
	case []Record:
		return v
	case []map[string]any:
		out := make([]Record, len(v))
		for i, m := range v {
			out[i] = Record(m)
		}
		return out
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			switch m := item.(type) {
			case Record:
				out = append(out, m)
			case map[string]any:
				out = append(out, Record(m))
			}
		}
		return out
	}
	return nil
}

// Attachment is the document value of Attachment and AttachImage fields.
// It is stored as a JSON envelope {name, type, data}.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// SingleValue is one stored field of a single schema.
type SingleValue struct {
	Name      string
	Parent    string
	Fieldname string
	Value     any
}

// SingleValueKey selects single values by fieldname and optional parent.
type SingleValueKey struct {
	Fieldname string
	Parent    string
}
