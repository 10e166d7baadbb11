package engine

import (
	"path"
	"strings"
)

// DefaultFilter is the default selection policy: it excludes every script
// whose name is already in the executed-set snapshot and keeps the rest in
// their sequenced order.
type DefaultFilter struct{}

// Filter returns the order-preserving subset of scripts whose names are not
// in executed under the comparer.
func (DefaultFilter) Filter(scripts []Script, executed []string, comparer NameComparer) []Script {
	var pending []Script
	for _, script := range scripts {
		if containsName(executed, script.Name, comparer) {
			continue
		}
		pending = append(pending, script)
	}
	return pending
}

// NewSuffixFilter returns a filter that drops scripts whose base name
// (extension stripped) ends with suffix, then delegates to next. It keeps
// rollback counterparts discoverable in the catalog while excluding them
// from forward runs. A nil next delegates to DefaultFilter.
func NewSuffixFilter(suffix string, next ScriptFilter) ScriptFilter {
	if next == nil {
		next = DefaultFilter{}
	}
	return FilterFunc(func(scripts []Script, executed []string, comparer NameComparer) []Script {
		var forward []Script
		for _, script := range scripts {
			if hasBaseSuffix(script.Name, suffix) {
				continue
			}
			forward = append(forward, script)
		}
		return next.Filter(forward, executed, comparer)
	})
}

// hasBaseSuffix reports whether the name, with its extension stripped, ends
// with suffix.
func hasBaseSuffix(name, suffix string) bool {
	if suffix == "" {
		return false
	}
	ext := path.Ext(name)
	return strings.HasSuffix(name[:len(name)-len(ext)], suffix)
}

// FilterFunc adapts a plain function to the ScriptFilter interface.
type FilterFunc func(scripts []Script, executed []string, comparer NameComparer) []Script

// Filter implements ScriptFilter.
func (f FilterFunc) Filter(scripts []Script, executed []string, comparer NameComparer) []Script {
	return f(scripts, executed, comparer)
}
