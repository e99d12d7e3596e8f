package vo

import "time"

// Record is one extracted row plus provenance. Append-only once emitted.
type Record struct {
	Fields      map[string]interface{}
	SourceURL   string
	ExtractedAt time.Time
}

// FieldType declares how a schema column is parsed.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
)

type Field struct {
	Name string    `yaml:"name" json:"name"`
	Type FieldType `yaml:"type" json:"type"`
}

// Schema declares the structural anchor of a statistics table and the
// fields expected per row, in column order.
type Schema struct {
	Anchor string  `yaml:"anchor" json:"anchor"`
	Fields []Field `yaml:"fields" json:"fields"`
}

// FieldNames returns the declared column names in schema order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}
