package tools

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// ToAnthropic renders defs as Anthropic tool params.
func ToAnthropic(defs []Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema := anthropic.ToolInputSchemaParam{}
		if d.Parameters != nil {
			schema.Properties = d.Parameters.Properties
			schema.Required = d.Parameters.Required
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}
