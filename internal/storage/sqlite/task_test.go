package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/task"
)

func TestRepositoryTaskHistory(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo := newRepo(t)
	ctx := context.TODO()
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	err := repo.RecordTask(ctx, task.Record{
		Operation: "borrow",
		Subject:   "b0",
		Failed:    true,
		CreatedAt: now,
		Steps: []task.RecordStep{
			{Sequence: 1, Description: "Borrowing", Status: task.StatusDone, Message: "ok"},
			{Sequence: 2, Description: "Downloading", Status: task.StatusFailed, Message: "boom", Error: "connection failed"},
		},
	})
	require.NoError(err)
	require.NoError(repo.RecordTask(ctx, task.Record{Operation: "sync", Subject: "a0", CreatedAt: now}))
	require.NoError(repo.RecordTask(ctx, task.Record{Operation: "revoke", Subject: "b0", CreatedAt: now}))

	recs, err := repo.ListTaskRecords(ctx, "b0")
	require.NoError(err)
	require.Len(recs, 2)

	assert.Equal("borrow", recs[0].Operation)
	assert.True(recs[0].Failed)
	assert.Equal(now, recs[0].CreatedAt)
	assert.NotEmpty(recs[0].ID)
	require.Len(recs[0].Steps, 2)
	assert.Equal(task.RecordStep{Sequence: 2, Description: "Downloading", Status: task.StatusFailed, Message: "boom", Error: "connection failed"}, recs[0].Steps[1])

	assert.Equal("revoke", recs[1].Operation)
	assert.Empty(recs[1].Steps)

	all, err := repo.ListTaskRecords(ctx, "")
	require.NoError(err)
	assert.Len(all, 3)
}
