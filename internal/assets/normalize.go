package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// EmbeddingText builds the canonical text representation of an asset used as
// embedding input. The output is deterministic: fields appear in a fixed
// order (name, artists, category, tags, description), artists keep their
// original order, tags are sorted lexicographically, and fields that are
// missing or blank are omitted rather than rendered as empty placeholders.
func EmbeddingText(a *Asset) string {
	var parts []string

	if name := strings.TrimSpace(a.Name); name != "" {
		parts = append(parts, name)
	}

	if artists := joinNonEmpty(a.Artists, false); artists != "" {
		parts = append(parts, "by "+artists)
	}

	if category := strings.TrimSpace(a.Category); category != "" {
		parts = append(parts, "Category: "+category)
	}

	if tags := joinNonEmpty(a.Tags, true); tags != "" {
		parts = append(parts, "Tags: "+tags)
	}

	if figures := joinNonEmpty(a.CompatibleFigures, true); figures != "" {
		parts = append(parts, "Compatible with: "+figures)
	}

	if desc := strings.TrimSpace(a.Description); desc != "" {
		parts = append(parts, desc)
	}

	return strings.Join(parts, ". ")
}

// ComputeContentHash returns the SHA-256 hex digest of the asset's canonical
// embedding text. Identical normalizer input always yields an identical hash,
// so the hash changes exactly when a field the normalizer consumes changes.
func ComputeContentHash(a *Asset) string {
	sum := sha256.Sum256([]byte(EmbeddingText(a)))
	return hex.EncodeToString(sum[:])
}

// joinNonEmpty joins trimmed, non-blank values with ", ". When sorted is
// true the values are ordered lexicographically first.
func joinNonEmpty(values []string, sorted bool) string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if sorted {
		sort.Strings(cleaned)
	}
	return strings.Join(cleaned, ", ")
}
