package engine

import (
	"strings"
	"testing"
)

func TestDefaultFilter_ExcludesExecutedNames(t *testing.T) {
	t.Parallel()

	ordered := []Script{
		{Name: "0001.sql"},
		{Name: "0002.sql"},
		{Name: "0003.sql"},
	}
	executed := []string{"0002.sql"}

	equalNames(t, DefaultFilter{}.Filter(ordered, executed, DefaultComparer),
		"0001.sql", "0003.sql")
}

func TestDefaultFilter_PreservesRelativeOrder(t *testing.T) {
	t.Parallel()

	ordered := []Script{
		{Name: "0005.sql"},
		{Name: "0001.sql"},
		{Name: "0009.sql"},
	}

	// Whatever the incoming order, the filter may only drop entries.
	equalNames(t, DefaultFilter{}.Filter(ordered, []string{"0001.sql"}, DefaultComparer),
		"0005.sql", "0009.sql")
}

func TestDefaultFilter_DisjointFromExecutedSet(t *testing.T) {
	t.Parallel()

	ordered := []Script{{Name: "a.sql"}, {Name: "b.sql"}, {Name: "c.sql"}}
	executed := []string{"a.sql", "c.sql", "zz.sql"}

	for _, script := range (DefaultFilter{}.Filter(ordered, executed, DefaultComparer)) {
		if containsName(executed, script.Name, DefaultComparer) {
			t.Fatalf("filter selected already executed script %s", script.Name)
		}
	}
}

func TestDefaultFilter_EmptyExecutedSetKeepsEverything(t *testing.T) {
	t.Parallel()

	ordered := []Script{{Name: "a.sql"}, {Name: "b.sql"}}
	equalNames(t, DefaultFilter{}.Filter(ordered, nil, DefaultComparer), "a.sql", "b.sql")
}

func TestDefaultFilter_RespectsComparer(t *testing.T) {
	t.Parallel()

	fold := func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	}
	ordered := []Script{{Name: "V1.SQL"}, {Name: "V2.SQL"}}

	equalNames(t, DefaultFilter{}.Filter(ordered, []string{"v1.sql"}, fold), "V2.SQL")
}

func TestSuffixFilter_DropsRollbackCounterparts(t *testing.T) {
	t.Parallel()

	ordered := []Script{
		{Name: "V1.sql"},
		{Name: "V1_rollback.sql"},
		{Name: "V2.sql"},
		{Name: "V2_rollback.sql"},
	}

	filter := NewSuffixFilter("_rollback", nil)
	equalNames(t, filter.Filter(ordered, []string{"V1.sql"}, DefaultComparer), "V2.sql")
}

func TestSuffixFilter_EmptySuffixDelegatesUnchanged(t *testing.T) {
	t.Parallel()

	ordered := []Script{{Name: "V1_rollback.sql"}}
	filter := NewSuffixFilter("", nil)
	equalNames(t, filter.Filter(ordered, nil, DefaultComparer), "V1_rollback.sql")
}
