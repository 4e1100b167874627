// Package template renders declarative deployment templates by substituting
// named variables into string leaves. Rendering is a pure tree walk; the
// registry is the only stateful part and is scoped to a Manager instance.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrTemplateNameRequired = errors.New("template name is required")
	ErrTemplateSpecRequired = errors.New("template spec is required")
	ErrUnknownTemplate      = errors.New("unknown template")
)

// =============================================================================
// Template
// =============================================================================

// DefaultTemplateName is the template used when the caller does not name one.
const DefaultTemplateName = "isp-framework"

// Template is a declarative deployment spec with {{variable}} placeholders
// in string leaves. Specs are treated as immutable once registered.
type Template struct {
	Name              string
	Infrastructure    domain.InfrastructureType
	RequiredVariables []string
	Spec              map[string]any
}

// Key identifies a template in the registry.
type Key struct {
	Name           string
	Infrastructure domain.InfrastructureType
}

// =============================================================================
// Manager
// =============================================================================

// Manager holds the template registry. Custom templates can be registered at
// runtime; a register under an existing key replaces the previous template,
// which lets deployments override the built-in defaults.
type Manager struct {
	mu        sync.RWMutex
	templates map[Key]*Template
}

// NewManager creates a manager seeded with the built-in templates, one per
// infrastructure family.
func NewManager() *Manager {
	m := &Manager{templates: make(map[Key]*Template)}
	for _, t := range builtinTemplates() {
		m.templates[Key{t.Name, t.Infrastructure}] = t
	}
	return m
}

// Register adds or replaces a template.
func (m *Manager) Register(t *Template) error {
	if t == nil || t.Name == "" {
		return ErrTemplateNameRequired
	}
	if !t.Infrastructure.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidInfrastructureType, t.Infrastructure)
	}
	if len(t.Spec) == 0 {
		return ErrTemplateSpecRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[Key{t.Name, t.Infrastructure}] = t
	return nil
}

// Get returns a registered template.
func (m *Manager) Get(name string, infra domain.InfrastructureType) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[Key{name, infra}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownTemplate, name, infra)
	}
	return t, nil
}

// List returns the registered template keys in a stable order.
func (m *Manager) List() []Key {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]Key, 0, len(m.templates))
	for k := range m.templates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Infrastructure < keys[j].Infrastructure
	})
	return keys
}

// Render looks up a template and substitutes variables into a fresh copy of
// its spec. Missing required variables are all collected into one
// TemplateError before any substitution happens; rendering never falls back
// to defaults. The registered spec is never mutated, so rendering the same
// inputs twice yields identical output.
func (m *Manager) Render(ispID, name string, infra domain.InfrastructureType, vars map[string]string) (map[string]any, error) {
	t, err := m.Get(name, infra)
	if err != nil {
		return nil, domain.NewTemplateError(ispID, err.Error(), nil)
	}

	if missing := missingVariables(t, vars); len(missing) > 0 {
		return nil, domain.NewTemplateError(ispID,
			fmt.Sprintf("template %s/%s is missing required variables", name, infra), missing)
	}

	rendered, ok := substituteTree(t.Spec, vars).(map[string]any)
	if !ok {
		return nil, domain.NewTemplateError(ispID, "template spec root must be a mapping", nil)
	}
	return rendered, nil
}

// =============================================================================
// Substitution (Pure)
// =============================================================================

var placeholderRegex = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+)\}\}`)

// missingVariables returns the required variables absent from vars, in the
// template's declaration order.
func missingVariables(t *Template, vars map[string]string) []string {
	var missing []string
	for _, name := range t.RequiredVariables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// substituteTree walks a spec tree and returns a deep copy with every
// {{name}} placeholder in string leaves replaced by vars[name]. Placeholders
// without a value are left verbatim; the required-variable check runs before
// this walk, so an untouched placeholder is an optional one by definition.
func substituteTree(node any, vars map[string]string) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = substituteTree(child, vars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = substituteTree(child, vars)
		}
		return out
	case string:
		return substituteString(v, vars)
	default:
		return v
	}
}

func substituteString(s string, vars map[string]string) string {
	return placeholderRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}
