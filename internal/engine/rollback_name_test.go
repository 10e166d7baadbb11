package engine

import "testing"

func TestRollbackNameFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		suffix string
		want   string
	}{
		{"V2.sql", "_rollback", "V2_rollback.sql"},
		{"V2.sql", "_down", "V2_down.sql"},
		{"0001_initial_schema.sql", "_rollback", "0001_initial_schema_rollback.sql"},
		{"backup.2024.sql", "_down", "backup.2024_down.sql"},
		{"V2", "_down", "V2_down"},
	}

	for _, tc := range cases {
		if got := rollbackNameFor(tc.name, tc.suffix); got != tc.want {
			t.Errorf("rollbackNameFor(%q, %q) = %q, want %q", tc.name, tc.suffix, got, tc.want)
		}
	}
}
