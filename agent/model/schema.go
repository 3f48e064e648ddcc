package model

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// StepLogger receives warnings emitted while preparing a request for a
// provider. tasklog.TaskLog satisfies this without agent/model importing
// tasklog directly.
type StepLogger interface {
	LogStep(infoLevel, stepName, message string, metadata map[string]any)
}

// FilterValidToolDefinitions validates each definition's InputSchema as a
// well-formed JSON Schema document, dropping and logging (via logger, which
// may be nil) any that fail to compile rather than sending a schema the
// provider would reject outright. An empty InputSchema is treated as "no
// input parameters" and always passes.
func FilterValidToolDefinitions(defs []ToolDefinition, logger StepLogger) []ToolDefinition {
	out := make([]ToolDefinition, 0, len(defs))
	for _, def := range defs {
		if err := validateSchema(def.InputSchema, def.ServerName+"-"+def.ToolName); err != nil {
			if logger != nil {
				logger.LogStep("warning", "LLM Client | Schema Validation",
					fmt.Sprintf("dropping tool %s.%s: invalid input_schema: %v", def.ServerName, def.ToolName, err),
					map[string]any{"server_name": def.ServerName, "tool_name": def.ToolName})
			}
			continue
		}
		out = append(out, def)
	}
	return out
}

func validateSchema(raw []byte, resourceID string) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	url := "mem://tool-schema/" + resourceID
	if err := c.AddResource(url, doc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	if _, err := c.Compile(url); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return nil
}
