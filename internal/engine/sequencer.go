package engine

import (
	"context"
	"fmt"
	"sort"
)

// discover aggregates the candidate scripts from every provider, in provider
// registration order. Duplicate names across providers are a provider-level
// concern and pass through untouched.
func (e *Engine) discover(ctx context.Context) ([]Script, error) {
	var scripts []Script
	for _, provider := range e.cfg.Providers {
		batch, err := provider.GetScripts(ctx)
		if err != nil {
			return nil, fmt.Errorf("script discovery failed: %w", err)
		}
		scripts = append(scripts, batch...)
	}
	return scripts, nil
}

// sequence imposes the one total order every operation works from: run group
// ascending, then name ascending under the comparer. The sort is stable, so
// ties retain their original emission order.
func sequence(scripts []Script, comparer NameComparer) []Script {
	ordered := make([]Script, len(scripts))
	copy(ordered, scripts)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].RunGroup != ordered[j].RunGroup {
			return ordered[i].RunGroup < ordered[j].RunGroup
		}
		return comparer(ordered[i].Name, ordered[j].Name) < 0
	})

	return ordered
}

// containsName reports whether any of names equals name under the comparer.
func containsName(names []string, name string, comparer NameComparer) bool {
	for _, candidate := range names {
		if comparer(candidate, name) == 0 {
			return true
		}
	}
	return false
}

// findScript locates a script by name under the comparer.
func findScript(scripts []Script, name string, comparer NameComparer) (Script, bool) {
	for _, s := range scripts {
		if comparer(s.Name, name) == 0 {
			return s, true
		}
	}
	return Script{}, false
}
