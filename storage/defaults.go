package storage

import "kanban-api/domain"

// Every new board starts with the same three stages.
var defaultColumnSeeds = []struct {
	slug  string
	title string
}{
	{slug: "todo", title: "To Do"},
	{slug: "in-progress", title: "In Progress"},
	{slug: "done", title: "Done"},
}

// DefaultColumns returns the standard column set for a board. IDs are
// derived from the board id so seeding is idempotent.
func DefaultColumns(boardID string) []domain.Column {
	columns := make([]domain.Column, 0, len(defaultColumnSeeds))
	for i, seed := range defaultColumnSeeds {
		columns = append(columns, domain.Column{
			ID:      boardID + "#" + seed.slug,
			BoardID: boardID,
			Title:   seed.title,
			Order:   i + 1,
		})
	}
	return columns
}
