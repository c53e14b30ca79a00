package utils

import (
	"reflect"
	"strconv"
	"strings"
)

// UpdatesFromPtrDTO builds a column map from the non-nil pointer fields of a
// DTO, keyed by the json tag name. renames translates json names to columns.
func UpdatesFromPtrDTO(dto any, renames map[string]string) map[string]any {
	res := make(map[string]any)
	s, ok := structOf(dto)
	if !ok {
		return res
	}
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		fv := s.Field(i)
		if fv.Kind() != reflect.Ptr || fv.IsNil() {
			continue
		}
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		if alt, ok := renames[name]; ok && alt != "" {
			name = alt
		}
		res[name] = fv.Elem().Interface()
	}
	return res
}

// ParseIntDefault parses a non-negative query value, returning def otherwise.
func ParseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v >= 0 {
		return v
	}
	return def
}
