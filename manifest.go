package magik

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RouteRule declares that entries of one type flow from one branch to
// another. "boundary" names the composite's own edge.
type RouteRule struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	EntryType string `yaml:"entry_type"`
}

// BranchManifest describes one inner branch: the entry types whose journal
// it owns, and the types it produces and consumes.
type BranchManifest struct {
	Name     string   `yaml:"name"`
	Owns     []string `yaml:"owns"`
	Produces []string `yaml:"produces"`
	Consumes []string `yaml:"consumes"`
}

// CompositeManifest declares a composite daemon's wiring: its boundary
// entry type, the types crossing the boundary, the inner branches and the
// routes between them. Validation runs at build time so a malformed
// composite never starts.
type CompositeManifest struct {
	Daemon   string           `yaml:"daemon"`
	Boundary string           `yaml:"boundary"`
	Produces []string         `yaml:"produces"`
	Consumes []string         `yaml:"consumes"`
	Branches []BranchManifest `yaml:"branches"`
	Routes   []RouteRule      `yaml:"routes"`
}

// boundaryName is the route endpoint denoting the composite's own edge.
const boundaryName = "boundary"

// Validate checks the manifest's internal consistency:
//   - no entry type is owned by more than one branch journal
//   - every produced entry type has a consumer
//   - every consumed entry type has a producer
//   - routes reference declared branches
//
// All violations are reported, joined into one error.
func (m *CompositeManifest) Validate() error {
	var errs error

	owners := make(map[string][]string)
	branchNames := make(map[string]bool, len(m.Branches))
	for _, br := range m.Branches {
		if branchNames[br.Name] {
			errs = errors.Join(errs, fmt.Errorf("magik: manifest: duplicate branch name %q", br.Name))
		}
		branchNames[br.Name] = true
		for _, t := range br.Owns {
			owners[t] = append(owners[t], br.Name)
		}
	}
	for t, bs := range owners {
		if len(bs) > 1 {
			errs = errors.Join(errs, &ManifestError{
				EntryType: t,
				Branches:  bs,
				Reason:    "owned by more than one journal",
			})
		}
	}

	consumed := make(map[string][]string)
	produced := make(map[string][]string)
	for _, br := range m.Branches {
		for _, t := range br.Consumes {
			consumed[t] = append(consumed[t], br.Name)
		}
		for _, t := range br.Produces {
			produced[t] = append(produced[t], br.Name)
		}
	}
	// Types crossing the boundary count as consumed/produced by the
	// composite's edge.
	for _, t := range m.Produces {
		consumed[t] = append(consumed[t], boundaryName)
	}
	for _, t := range m.Consumes {
		produced[t] = append(produced[t], boundaryName)
	}

	for _, br := range m.Branches {
		for _, t := range br.Produces {
			if onlySelf(consumed[t], br.Name) {
				errs = errors.Join(errs, &ManifestError{
					EntryType: t,
					Branches:  []string{br.Name},
					Reason:    "produced but has no consumer",
				})
			}
		}
		for _, t := range br.Consumes {
			if onlySelf(produced[t], br.Name) {
				errs = errors.Join(errs, &ManifestError{
					EntryType: t,
					Branches:  []string{br.Name},
					Reason:    "consumed but has no producer",
				})
			}
		}
	}

	for _, r := range m.Routes {
		for _, end := range []string{r.From, r.To} {
			if end != boundaryName && !branchNames[end] {
				errs = errors.Join(errs, &ManifestError{
					EntryType: r.EntryType,
					Branches:  []string{end},
					Reason:    "route references unknown branch",
				})
			}
		}
	}

	return errs
}

// onlySelf reports whether names is empty or contains nothing but self.
func onlySelf(names []string, self string) bool {
	for _, n := range names {
		if n != self {
			return false
		}
	}
	return true
}

// LoadManifest parses a YAML composite manifest and validates it.
func LoadManifest(data []byte) (*CompositeManifest, error) {
	var m CompositeManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("magik: manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
