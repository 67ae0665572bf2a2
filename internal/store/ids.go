package store

import (
	"strings"
)

// idPadWidth is the zero-pad width for numeric ID suffixes.
const idPadWidth = 6

// knownPrefixes are the category prefixes that may appear, possibly
// duplicated, on upstream IDs.
var knownPrefixes = []string{"law_", "case_", "article_"}

// NormalizeID maps any upstream ID spelling to its canonical form:
// lowercase, exactly one category prefix, numeric suffix zero-padded to
// six digits. Idempotent.
func NormalizeID(id string, category Category) string {
	bare := stripPrefixes(strings.ToLower(strings.TrimSpace(id)))
	return category.Prefix() + padNumeric(bare)
}

// stripPrefixes removes every leading known prefix, handling duplicated
// forms like "case_case_000123".
func stripPrefixes(id string) string {
	for {
		stripped := false
		for _, p := range knownPrefixes {
			if strings.HasPrefix(id, p) && len(id) > len(p) {
				id = id[len(p):]
				stripped = true
			}
		}
		if !stripped {
			return id
		}
	}
}

// padNumeric zero-pads purely numeric IDs to idPadWidth digits. IDs
// longer than the pad width or non-numeric are returned unchanged,
// minus any existing surplus leading zeros beyond the pad width.
func padNumeric(id string) string {
	if !isNumeric(id) {
		return id
	}
	trimmed := strings.TrimLeft(id, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	if len(trimmed) >= idPadWidth {
		return trimmed
	}
	return strings.Repeat("0", idPadWidth-len(trimmed)) + trimmed
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IDVariants returns candidate ID spellings for content lookup, most
// specific first: the exact ID, the de-duplicated-prefix form, the
// prefix-added form, and padded/unpadded numeric forms. Duplicates are
// removed preserving order.
func IDVariants(id string, category Category) []string {
	id = strings.TrimSpace(id)
	lower := strings.ToLower(id)
	bare := stripPrefixes(lower)
	prefix := category.Prefix()

	candidates := []string{
		id,
		prefix + bare,
		bare,
	}

	if isNumeric(bare) {
		padded := padNumeric(bare)
		unpadded := strings.TrimLeft(bare, "0")
		if unpadded == "" {
			unpadded = "0"
		}
		candidates = append(candidates,
			prefix+padded,
			prefix+unpadded,
			padded,
			unpadded,
		)
	}

	seen := make(map[string]struct{}, len(candidates))
	variants := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		variants = append(variants, c)
	}
	return variants
}
