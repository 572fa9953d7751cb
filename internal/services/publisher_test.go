package services

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"studykit-backend/internal/models"
)

func TestUserChannel(t *testing.T) {
	id := uuid.MustParse("6f1c1c9e-1111-4222-8333-444455556666")
	assert.Equal(t, "user_updates:6f1c1c9e-1111-4222-8333-444455556666", UserChannel(id))
}

func TestPublisher_Status(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewPublisher(db, zap.NewNop())
	userID := uuid.New()
	jobID := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	mock.ExpectPublish(UserChannel(userID),
		`{"type":"status_update","payload":{"job_id":"00000000-0000-0000-0000-000000000001","step":2,"step_name":"Chunking text"}}`).
		SetVal(1)

	pub.Status(context.Background(), userID, jobID, 2, "Chunking text")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublisher_Failed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewPublisher(db, zap.NewNop())
	userID := uuid.New()
	jobID := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	mock.ExpectPublish(UserChannel(userID),
		`{"type":"error","payload":{"job_id":"00000000-0000-0000-0000-000000000002","error_code":"GENERATION_FAILED","error_message":"boom"}}`).
		SetVal(0)

	pub.Failed(context.Background(), userID, models.ErrorEvent{JobID: jobID, ErrorCode: "GENERATION_FAILED", ErrorMessage: "boom"})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublisher_RedisErrorIsSwallowed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewPublisher(db, zap.NewNop())
	userID := uuid.New()
	jobID := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	mock.ExpectPublish(UserChannel(userID),
		`{"type":"completed","payload":{"job_id":"00000000-0000-0000-0000-000000000003","result_id":"00000000-0000-0000-0000-000000000000","result_type":"summary"}}`).
		SetErr(errors.New("connection refused"))

	assert.NotPanics(t, func() {
		pub.Completed(context.Background(), userID, models.CompletedEvent{JobID: jobID, ResultType: "summary"})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
