package tools

import (
	"github.com/google/generative-ai-go/genai"
)

var geminiTypes = map[Type]genai.Type{
	TypeObject:  genai.TypeObject,
	TypeString:  genai.TypeString,
	TypeNumber:  genai.TypeNumber,
	TypeInteger: genai.TypeInteger,
	TypeBoolean: genai.TypeBoolean,
	TypeArray:   genai.TypeArray,
}

// ToGemini renders defs as a single Gemini tool holding one function
// declaration per definition.
func ToGemini(defs []Definition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  toGeminiSchema(d.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        geminiTypes[s.Type],
		Description: s.Description,
		Format:      s.Format,
		Enum:        s.Enum,
		Items:       toGeminiSchema(s.Items),
		Required:    s.Required,
	}
	// Gemini spells enum constraints on strings as a format.
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGeminiSchema(p)
		}
	}
	return out
}

// FromGemini maps Gemini tools back to definitions. The mutating flag is
// restored from the catalog by name.
func FromGemini(gts []*genai.Tool) []Definition {
	var defs []Definition
	for _, gt := range gts {
		for _, fd := range gt.FunctionDeclarations {
			defs = append(defs, Definition{
				Name:        fd.Name,
				Description: fd.Description,
				Mutating:    IsMutating(fd.Name),
				Parameters:  fromGeminiSchema(fd.Parameters),
			})
		}
	}
	return defs
}

func fromGeminiSchema(gs *genai.Schema) *Schema {
	if gs == nil {
		return nil
	}
	out := &Schema{
		Description: gs.Description,
		Enum:        gs.Enum,
		Items:       fromGeminiSchema(gs.Items),
		Required:    gs.Required,
	}
	for t, g := range geminiTypes {
		if g == gs.Type {
			out.Type = t
			break
		}
	}
	if gs.Format != "enum" {
		out.Format = gs.Format
	}
	if len(gs.Properties) > 0 {
		out.Properties = make(map[string]*Schema, len(gs.Properties))
		for name, p := range gs.Properties {
			out.Properties[name] = fromGeminiSchema(p)
		}
	}
	return out
}
