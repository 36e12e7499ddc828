package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

type boardEntity struct {
	aztables.Entity
	Name        string `json:"Name"`
	Description string `json:"Description"`
	Owner       string `json:"Owner"`
	Members     string `json:"Members"`
	CreatedAt   string `json:"CreatedAt"`
}

func (e boardEntity) toDomain() domain.Board {
	return domain.Board{
		ID:          e.RowKey,
		Name:        e.Name,
		Description: e.Description,
		Owner:       e.Owner,
		Members:     decodeStringList(e.Members),
		CreatedAt:   decodeTime(e.CreatedAt),
	}
}

// GetBoard fetches a single board row.
func (s *Storage) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	resp, err := s.boardTable.GetEntity(ctx, boardID, boardID, nil)
	if err != nil {
		return domain.Board{}, mapTableError(err)
	}
	var ent boardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Board{}, err
	}
	return ent.toDomain(), nil
}

// InsertBoard creates a new board row.
func (s *Storage) InsertBoard(ctx context.Context, b domain.Board) error {
	ent := boardEntity{
		Entity:      aztables.Entity{PartitionKey: b.ID, RowKey: b.ID},
		Name:        b.Name,
		Description: b.Description,
		Owner:       b.Owner,
		Members:     encodeStringList(b.Members),
		CreatedAt:   encodeTime(b.CreatedAt),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.boardTable.AddEntity(ctx, data, nil)
	return mapTableError(err)
}

// AddBoardMember appends userID to the board's member list. Re-adding an
// existing member is a no-op.
func (s *Storage) AddBoardMember(ctx context.Context, boardID, userID string) error {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if board.HasMember(userID) {
		return nil
	}
	members := append(board.Members, userID)
	props := map[string]any{
		"PartitionKey": boardID,
		"RowKey":       boardID,
		"Members":      encodeStringList(members),
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	mode := aztables.UpdateModeMerge
	_, err = s.boardTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: mode})
	return mapTableError(err)
}

// ListBoardsFor returns every board the user owns or is a member of. Member
// lists are small; the scan filters client side.
func (s *Storage) ListBoardsFor(ctx context.Context, userID string) ([]domain.Board, error) {
	pager := s.boardTable.NewListEntitiesPager(nil)
	boards := []domain.Board{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapTableError(err)
		}
		for _, e := range resp.Entities {
			var ent boardEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			board := ent.toDomain()
			if board.HasMember(userID) {
				boards = append(boards, board)
			}
		}
	}
	return boards, nil
}

type columnEntity struct {
	aztables.Entity
	Title string `json:"Title"`
	Order int    `json:"Order"`
}

// GetColumn looks a column up by id across all boards.
func (s *Storage) GetColumn(ctx context.Context, columnID string) (domain.Column, error) {
	var ent columnEntity
	if err := queryOne(ctx, s.columnTable, "RowKey eq '"+filterValue(columnID)+"'", &ent); err != nil {
		return domain.Column{}, err
	}
	return domain.Column{ID: ent.RowKey, BoardID: ent.PartitionKey, Title: ent.Title, Order: ent.Order}, nil
}

// ListColumns returns the board's columns in display order.
func (s *Storage) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	filter := "PartitionKey eq '" + filterValue(boardID) + "'"
	pager := s.columnTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	columns := []domain.Column{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapTableError(err)
		}
		for _, e := range resp.Entities {
			var ent columnEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			columns = append(columns, domain.Column{ID: ent.RowKey, BoardID: ent.PartitionKey, Title: ent.Title, Order: ent.Order})
		}
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Order < columns[j].Order })
	return columns, nil
}

// EnsureDefaultColumns upserts the three standard stages for a board. The
// row keys are deterministic, so repeated seeding converges on the same rows.
func (s *Storage) EnsureDefaultColumns(ctx context.Context, boardID string) error {
	for _, column := range DefaultColumns(boardID) {
		ent := columnEntity{
			Entity: aztables.Entity{PartitionKey: boardID, RowKey: column.ID},
			Title:  column.Title,
			Order:  column.Order,
		}
		data, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		mode := aztables.UpdateModeReplace
		if _, err := s.columnTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: mode}); err != nil {
			return mapTableError(err)
		}
	}
	return nil
}
