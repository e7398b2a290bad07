package resolver

import (
	"context"
	"hash/fnv"
	"strings"
)

// StaticSearch is a SearchProvider backed by a fixed keyword table.
// Keywords match case-insensitively.
type StaticSearch map[string][]string

// Search returns the candidates registered for keyword.
func (s StaticSearch) Search(_ context.Context, keyword string) ([]string, error) {
	if c, ok := s[keyword]; ok {
		return c, nil
	}
	for k, c := range s {
		if strings.EqualFold(k, keyword) {
			return c, nil
		}
	}
	return nil, nil
}

// pickIndex chooses a stable candidate index for keyword.
func pickIndex(keyword string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(keyword))
	return int(h.Sum32() % uint32(n))
}
