package tools

import (
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ToOpenAI renders defs as OpenAI function tools. The parameters are the
// neutral schema itself, whose JSON form is JSON Schema.
func ToOpenAI(defs []Definition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

// FromOpenAI maps OpenAI function tools back to definitions. Parameters may
// be a *Schema or any JSON-encodable JSON Schema value.
func FromOpenAI(ots []openai.Tool) ([]Definition, error) {
	var defs []Definition
	for _, ot := range ots {
		if ot.Type != openai.ToolTypeFunction || ot.Function == nil {
			continue
		}
		params, err := schemaFromAny(ot.Function.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s parameters: %w", ot.Function.Name, err)
		}
		defs = append(defs, Definition{
			Name:        ot.Function.Name,
			Description: ot.Function.Description,
			Mutating:    IsMutating(ot.Function.Name),
			Parameters:  params,
		})
	}
	return defs, nil
}

func schemaFromAny(v any) (*Schema, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case *Schema:
		return p, nil
	case json.RawMessage:
		var s Schema
		if err := json.Unmarshal(p, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
