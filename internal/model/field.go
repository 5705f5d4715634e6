package model

// DBF field type codes as stored in the shapefile attribute table.
const (
	FieldCharacter = 'C'
	FieldNumeric   = 'N'
	FieldFloat     = 'F'
	FieldLogical   = 'L'
	FieldDate      = 'D'
)

// Field describes one attribute column of a dataset.
type Field struct {
	Name      string `json:"name" yaml:"name"`
	Type      byte   `json:"-" yaml:"-"`
	Size      uint8  `json:"size" yaml:"size"`
	Precision uint8  `json:"precision" yaml:"precision"`
}

// Kind is a portable name for the field's value type: "string", "int",
// "float", "bool" or "date".
func (f Field) Kind() string {
	switch f.Type {
	case FieldNumeric:
		if f.Precision == 0 {
			return "int"
		}
		return "float"
	case FieldFloat:
		return "float"
	case FieldLogical:
		return "bool"
	case FieldDate:
		return "date"
	default:
		return "string"
	}
}

// FieldNames returns the names of fields in schema order.
func FieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
