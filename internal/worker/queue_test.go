package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studykit-backend/internal/models"
)

func TestQueueName(t *testing.T) {
	assert.Equal(t, "queue:quiz-generation", QueueName(models.JobQuizGeneration))
}

func TestQueue_Enqueue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewQueue(db)
	job := &models.Job{ID: uuid.New(), UserID: uuid.New(), Type: models.JobSummaryGeneration, Status: models.JobPending}

	payload, err := json.Marshal(job)
	require.NoError(t, err)
	mock.ExpectLPush("queue:summary-generation", string(payload)).SetVal(1)

	require.NoError(t, q.Enqueue(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_EnqueueError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewQueue(db)
	job := &models.Job{ID: uuid.New(), Type: models.JobDocumentProcessing}

	payload, err := json.Marshal(job)
	require.NoError(t, err)
	redisErr := errors.New("READONLY")
	mock.ExpectLPush("queue:document-processing", string(payload)).SetErr(redisErr)

	err = q.Enqueue(context.Background(), job)

	assert.ErrorIs(t, err, redisErr)
	assert.Contains(t, err.Error(), "document-processing")
}
