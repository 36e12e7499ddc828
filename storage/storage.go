// Package storage persists boards, columns, tasks, comments and
// notifications in Azure Table Storage and pushes activity records onto an
// Azure Storage queue.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"kanban-api/domain"
)

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	taskTable         *aztables.Client
	columnTable       *aztables.Client
	boardTable        *aztables.Client
	notificationTable *aztables.Client
	activityQueue     *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, columnsTable, boardsTable, notificationsTable, activityQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	aq, err := azqueue.NewQueueClientFromConnectionString(connStr, activityQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:         svc.NewClient(tasksTable),
		columnTable:       svc.NewClient(columnsTable),
		boardTable:        svc.NewClient(boardsTable),
		notificationTable: svc.NewClient(notificationsTable),
		activityQueue:     aq,
	}, nil
}

// mapTableError translates table-service 404s into the domain sentinel so
// callers never see transport errors for missing rows.
func mapTableError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return err
}

// String slices are stored as JSON inside a single string property. Table
// storage has no native list type.
func encodeStringList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// filterValue escapes a value for interpolation into an OData filter
// literal. The table service doubles embedded single quotes.
func filterValue(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// queryOne runs a filtered query and decodes the first entity into dst.
// Returns domain.ErrNotFound when the filter matches nothing.
func queryOne(ctx context.Context, table *aztables.Client, filter string, dst any) error {
	top := int32(1)
	pager := table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return mapTableError(err)
		}
		if len(resp.Entities) > 0 {
			return json.Unmarshal(resp.Entities[0], dst)
		}
	}
	return domain.ErrNotFound
}
