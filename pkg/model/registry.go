package model

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nstogner/forge/pkg/domain"
)

// Provider names understood by the registry's fallback routing.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Spec holds per-model parameters. Zero values mean "let the backend decide".
type Spec struct {
	ID          string   `yaml:"id" json:"id"`
	Provider    string   `yaml:"provider" json:"provider"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Vision      bool     `yaml:"vision,omitempty" json:"vision,omitempty"`
}

// Registry selects a Provider by model id and maps catalog parameters onto
// requests.
type Registry struct {
	providers map[string]Provider
	catalog   map[string]Spec
}

// NewRegistry creates a registry over the given catalog.
func NewRegistry(catalog []Spec) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		catalog:   make(map[string]Spec, len(catalog)),
	}
	for _, s := range catalog {
		r.catalog[s.ID] = s
	}
	return r
}

// Register adds a provider to the registry, keyed by its name.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Provider returns a registered provider by name.
func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve finds the provider and parameters for modelID. Catalog entries
// win; otherwise ids starting with "gemini" go to the gemini provider and
// everything else to the openai-compatible one.
func (r *Registry) Resolve(modelID string) (Provider, Spec, error) {
	if modelID == "" {
		return nil, Spec{}, fmt.Errorf("model id is required")
	}
	spec, ok := r.catalog[modelID]
	if !ok {
		spec = Spec{ID: modelID, Provider: ProviderOpenAI}
		if strings.HasPrefix(modelID, "gemini") {
			spec.Provider = ProviderGemini
		}
	}
	p, ok := r.providers[spec.Provider]
	if !ok {
		return nil, Spec{}, fmt.Errorf("model %q: provider %q is not configured", modelID, spec.Provider)
	}
	return p, spec, nil
}

// Catalog lists the configured models, sorted by id.
func (r *Registry) Catalog() []domain.Model {
	out := make([]domain.Model, 0, len(r.catalog))
	for _, s := range r.catalog {
		out = append(out, domain.Model{ID: s.ID, Name: s.ID, Provider: s.Provider, MaxTokens: s.MaxTokens})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Complete resolves req.Model and runs a blocking completion.
func (r *Registry) Complete(ctx context.Context, req Request) (*Completion, error) {
	p, spec, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	return p.Complete(ctx, applySpec(req, spec))
}

// Stream resolves req.Model and opens a streaming completion.
func (r *Registry) Stream(ctx context.Context, req Request) (ModelStream, error) {
	p, spec, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, applySpec(req, spec))
}

func applySpec(req Request, spec Spec) Request {
	if req.Temperature == nil && spec.Temperature != nil {
		t := *spec.Temperature
		req.Temperature = &t
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = spec.MaxTokens
	}
	return req
}
