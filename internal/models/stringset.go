package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSet is a list of unique strings persisted as a JSON array.
type StringSet []string

// NewStringSet builds a set from values, dropping duplicates and empty strings.
func NewStringSet(values ...string) StringSet {
	seen := make(map[string]struct{}, len(values))
	set := make(StringSet, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		set = append(set, v)
	}
	return set
}

// Contains reports whether v is in the set.
func (s StringSet) Contains(v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer.
func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *StringSet) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = StringSet{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringSet", src)
	}
	if len(raw) == 0 {
		*s = StringSet{}
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("failed to decode string set: %w", err)
	}
	*s = StringSet(values)
	return nil
}
