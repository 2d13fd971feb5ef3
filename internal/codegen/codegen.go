// Package codegen is the default template engine: it turns an agent
// specification into a template document and renders templates into
// executable agent source.
package codegen

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/kilnworks/kiln/internal/definition"
)

// Engine renders templates with text/template.
type Engine struct {
	tmpl *template.Template
}

// New creates an Engine with the agent source template parsed.
func New() (*Engine, error) {
	tmpl, err := template.New("agent").Funcs(template.FuncMap{
		"exported": exportedName,
		"quote":    func(s any) string { return fmt.Sprintf("%q", s) },
		"indent":   indent,
	}).Parse(agentSource)
	if err != nil {
		return nil, fmt.Errorf("parse agent template: %w", err)
	}
	return &Engine{tmpl: tmpl}, nil
}

// Render wraps a definition into a fresh template with no tools.
func (e *Engine) Render(def definition.Definition) (definition.Template, error) {
	if def.Name == "" {
		return definition.Template{}, fmt.Errorf("agent name is required")
	}
	if !definition.ValidType(string(def.Type)) {
		return definition.Template{}, fmt.Errorf("unknown agent type %q", def.Type)
	}
	if def.Capabilities == nil {
		def.Capabilities = []string{}
	}
	return definition.Template{Agent: def, Tools: []definition.ToolSpec{}}, nil
}

// AppendTool returns a new template with the tool added. Duplicate tool
// names are rejected.
func (e *Engine) AppendTool(tpl definition.Template, tool definition.ToolSpec) (definition.Template, error) {
	return tpl.WithTool(tool)
}

// Validate statically checks a template. It never fails; every problem is
// reported as a violation message.
func (e *Engine) Validate(tpl definition.Template) []string {
	var violations []string
	if tpl.Agent.Name == "" {
		violations = append(violations, "agent name is required")
	}
	if tpl.Agent.Description == "" {
		violations = append(violations, "agent description is required")
	}
	if tpl.Agent.Prompt == "" {
		violations = append(violations, "agent prompt is required")
	}
	if !definition.ValidType(string(tpl.Agent.Type)) {
		violations = append(violations, fmt.Sprintf("unknown agent type %q", tpl.Agent.Type))
	}
	seen := make(map[string]struct{}, len(tpl.Tools))
	for _, t := range tpl.Tools {
		if err := t.Validate(); err != nil {
			violations = append(violations, err.Error())
		}
		if _, dup := seen[t.Name]; dup {
			violations = append(violations, fmt.Sprintf("duplicate tool %q", t.Name))
		}
		seen[t.Name] = struct{}{}
	}
	return violations
}

// Generate renders a template into agent source text. It does not
// re-validate; callers validate first when correctness matters.
func (e *Engine) Generate(tpl definition.Template) (string, error) {
	var b strings.Builder
	if err := e.tmpl.Execute(&b, tpl); err != nil {
		return "", fmt.Errorf("render agent %s: %w", tpl.Agent.Name, err)
	}
	return b.String(), nil
}

// exportedName converts snake_case to an exported Go identifier.
func exportedName(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func indent(prefix, s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

const agentSource = `// Code generated by kiln for agent {{.Agent.Name}}. DO NOT EDIT.
package agents

// {{exported .Agent.Name}}: {{.Agent.Description}}
type {{exported .Agent.Name}} struct{}

func (a {{exported .Agent.Name}}) Name() string { return {{quote .Agent.Name}} }

func (a {{exported .Agent.Name}}) Type() string { return {{quote .Agent.Type}} }

func (a {{exported .Agent.Name}}) SystemPrompt() string {
	return {{quote .Agent.Prompt}}
}

func (a {{exported .Agent.Name}}) Capabilities() []string {
	return []string{ {{- range .Agent.Capabilities}}{{quote .}}, {{end -}} }
}
{{range .Tools}}
// {{exported .Name}}: {{.Description}}
{{- range .Parameters}}
// param {{.Name}} ({{.Type}}): {{.Description}}
{{- end}}
// returns {{.Returns.Type}}: {{.Returns.Description}}
func (a {{exported $.Agent.Name}}) {{exported .Name}}(args map[string]any) (any, error) {
{{indent "\t// " .Implementation}}
	return nil, nil
}
{{end}}`
