// Package selection parses the account/region picker syntax: a
// comma-separated list of 1-based indices and inclusive ranges
// ("1,3-5,7"), or the literal "all".
package selection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Parse returns the selected 1-based indices, sorted and deduplicated.
// Out-of-range indices are rejected with a descriptive error, never
// silently clamped.
func Parse(input string, max int) ([]int, error) {
	if max < 1 {
		return nil, fmt.Errorf("nothing to select from")
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, fmt.Errorf("empty selection")
	}

	if strings.EqualFold(trimmed, "all") {
		all := make([]int, max)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}

	picked := make(map[int]struct{})
	for _, part := range strings.Split(trimmed, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty element in selection %q", input)
		}
		lo, hi, err := parsePart(part)
		if err != nil {
			return nil, err
		}
		if lo < 1 || hi > max {
			return nil, fmt.Errorf("selection %q out of range 1-%d", part, max)
		}
		for i := lo; i <= hi; i++ {
			picked[i] = struct{}{}
		}
	}

	result := make([]int, 0, len(picked))
	for i := range picked {
		result = append(result, i)
	}
	sort.Ints(result)
	return result, nil
}

func parsePart(part string) (lo, hi int, err error) {
	if before, after, found := strings.Cut(part, "-"); found {
		lo, err = strconv.Atoi(strings.TrimSpace(before))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range start in %q", part)
		}
		hi, err = strconv.Atoi(strings.TrimSpace(after))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range end in %q", part)
		}
		if hi < lo {
			return 0, 0, fmt.Errorf("descending range %q", part)
		}
		return lo, hi, nil
	}

	n, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid index %q", part)
	}
	return n, n, nil
}
