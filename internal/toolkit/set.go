package toolkit

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

// Set is an ordered collection of tools with lookup by name and argument
// validation against each tool's input schema.
type Set struct {
	tools   []Tool
	byName  map[string]int
	schemas map[string]*jsonschema.Schema
}

// NewSet builds a Set. Later tools with a duplicate name are dropped. Schemas
// that fail to compile are logged and their tools are left unvalidated.
func NewSet(tools []Tool, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Set{
		byName:  make(map[string]int),
		schemas: make(map[string]*jsonschema.Schema),
	}

	for _, tool := range tools {
		if _, exists := s.byName[tool.Name]; exists {
			logger.Warn("duplicate tool ignored", zap.String("tool", tool.Name))
			continue
		}
		s.byName[tool.Name] = len(s.tools)
		s.tools = append(s.tools, tool)

		if len(tool.InputSchema) == 0 {
			continue
		}
		schema, err := compileSchema(tool.Name, tool.InputSchema)
		if err != nil {
			logger.Warn("tool input schema did not compile",
				zap.String("tool", tool.Name),
				zap.Error(err),
			)
			continue
		}
		s.schemas[tool.Name] = schema
	}

	return s
}

// Tools returns the tools in insertion order.
func (s *Set) Tools() []Tool {
	return s.tools
}

// Names returns the tool names in insertion order.
func (s *Set) Names() []string {
	return lo.Map(s.tools, func(t Tool, _ int) string { return t.Name })
}

// Len returns the number of tools.
func (s *Set) Len() int {
	return len(s.tools)
}

// Get returns the named tool.
func (s *Set) Get(name string) (Tool, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Tool{}, false
	}
	return s.tools[i], true
}

// Suggest returns the known tool name closest to name, or "" if nothing matches.
func (s *Set) Suggest(name string) string {
	matches := fuzzy.Find(name, s.Names())
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

// Validate checks args against the named tool's input schema.
func (s *Set) Validate(name string, args map[string]any) error {
	schema, ok := s.schemas[name]
	if !ok {
		return nil
	}

	// Round-trip through JSON so numbers and nested values have the shapes
	// the validator expects.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments for '%s' are not valid JSON: %w", name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("arguments for '%s' are not valid JSON: %w", name, err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid arguments for '%s': %w", name, err)
	}
	return nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
