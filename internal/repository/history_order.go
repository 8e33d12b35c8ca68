package repository

import "strings"

// resolveOrder maps a "field" / "-field" order onto an allow-listed column.
// Unknown fields fall back to the default column, keeping the direction.
func resolveOrder(order string, allowed map[string]string, fallback string) (string, string) {
	order = strings.TrimSpace(order)
	direction := "ASC"
	if strings.HasPrefix(order, "-") {
		direction = "DESC"
		order = strings.TrimPrefix(order, "-")
	}
	column, ok := allowed[order]
	if !ok {
		column = fallback
	}
	return column, direction
}

func filterPattern(text string) string {
	return "%" + strings.TrimSpace(text) + "%"
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
