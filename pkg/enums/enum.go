// Package enums mirrors the postgres enum types. Each type validates against
// its canonical value list; the lists match the CREATE TYPE migrations.
package enums

import (
	"fmt"
	"slices"
)

func parse[T ~string](kind, value string, valid []T) (T, error) {
	if v := T(value); slices.Contains(valid, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
