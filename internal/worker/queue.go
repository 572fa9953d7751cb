package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"studykit-backend/internal/models"
)

// JobTypes lists every job type a worker consumes, in BLPOP priority order.
var JobTypes = []string{
	models.JobDocumentProcessing,
	models.JobFlashcardGeneration,
	models.JobQuizGeneration,
	models.JobSummaryGeneration,
	models.JobStudyPackGeneration,
}

func QueueName(jobType string) string {
	return "queue:" + jobType
}

// Queue pushes jobs onto the per-type Redis lists the pool drains.
type Queue struct {
	redis *redis.Client
}

func NewQueue(redisClient *redis.Client) *Queue {
	return &Queue{redis: redisClient}
}

func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.redis.LPush(ctx, QueueName(job.Type), string(jobBytes)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", job.Type, err)
	}
	return nil
}
