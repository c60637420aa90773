package utils

import "strings"

// NormalizeID trims an identifier and collapses inner whitespace runs to a
// single space. Case is preserved: "prod_001" and "PROD_001" stay distinct.
func NormalizeID(id string) string {
	return strings.Join(strings.Fields(id), " ")
}

// NormalizeHeader lowercases a column header and maps spaces and hyphens to
// underscores so "Produto ID", "produto-id" and "produto_id" compare equal.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Join(strings.Fields(h), "_")
	return strings.ReplaceAll(h, "-", "_")
}
