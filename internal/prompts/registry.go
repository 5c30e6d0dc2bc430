// Package prompts holds the fixed instruction text used by each pipeline stage.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Stage names present in the embedded registry.
const (
	Classifier   = "classifier"
	Asset        = "asset"
	Maintenance  = "maintenance"
	Taxation     = "taxation"
	EmailDrafter = "email_drafter"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompt is a rendered system + user pair.
type Prompt struct {
	System string
	User   string
}

type entry struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`

	user *template.Template
}

// Registry maps stage names to prompt templates. It is read-only after Parse.
type Registry struct {
	entries map[string]*entry
}

// Default returns the registry built from the embedded prompts.yaml.
func Default() *Registry {
	r, err := Parse(defaultPrompts)
	if err != nil {
		panic(fmt.Errorf("embedded prompts: %w", err))
	}
	return r
}

// Parse builds a registry from YAML. Each stage needs a system and a user entry.
func Parse(data []byte) (*Registry, error) {
	raw := map[string]*entry{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	for name, e := range raw {
		if e == nil || strings.TrimSpace(e.System) == "" {
			return nil, fmt.Errorf("prompt %q: system text required", name)
		}
		tmpl, err := template.New(name).Option("missingkey=zero").Parse(e.User)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", name, err)
		}
		e.user = tmpl
	}
	return &Registry{entries: raw}, nil
}

// Render formats the named prompt with vars.
func (r *Registry) Render(name string, vars map[string]string) (Prompt, error) {
	e, ok := r.entries[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt %q", name)
	}
	var b strings.Builder
	if err := e.user.Execute(&b, vars); err != nil {
		return Prompt{}, fmt.Errorf("render prompt %q: %w", name, err)
	}
	return Prompt{
		System: strings.TrimSpace(e.System),
		User:   strings.TrimSpace(b.String()),
	}, nil
}

// Names lists the stages present in the registry.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}
