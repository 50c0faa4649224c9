package tools

// Type is a JSON Schema primitive type name.
type Type string

const (
	TypeObject  Type = "object"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
)

// Schema is the provider-neutral argument schema. Its JSON form is plain
// JSON Schema, which is what OpenAI and Anthropic accept directly.
type Schema struct {
	Type        Type               `json:"type"`
	Description string             `json:"description,omitempty"`
	Format      string             `json:"format,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// IsRequired reports whether name is listed in s.Required.
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

func object(required []string, props map[string]*Schema) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

func str(desc string) *Schema { return &Schema{Type: TypeString, Description: desc} }

func num(desc string) *Schema { return &Schema{Type: TypeNumber, Description: desc} }

func integer(desc string) *Schema { return &Schema{Type: TypeInteger, Description: desc} }

func boolean(desc string) *Schema { return &Schema{Type: TypeBoolean, Description: desc} }
