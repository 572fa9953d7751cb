package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studykit-backend/internal/models"
)

// UserChannel is the Redis pub/sub channel carrying a user's progress events.
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

// Publisher fans job progress out to the WebSocket hub through Redis.
type Publisher struct {
	redis *redis.Client
	log   *zap.Logger
}

func NewPublisher(redisClient *redis.Client, log *zap.Logger) *Publisher {
	return &Publisher{redis: redisClient, log: log}
}

// Publish is best effort: a lost progress event never fails a job.
func (p *Publisher) Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("marshal ws message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if err := p.redis.Publish(ctx, UserChannel(userID), string(data)).Err(); err != nil {
		p.log.Warn("publish update failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (p *Publisher) Status(ctx context.Context, userID, jobID uuid.UUID, step int, stepName string) {
	p.Publish(ctx, userID, models.WSMessage{
		Type:    "status_update",
		Payload: models.StatusUpdate{JobID: jobID, Step: step, StepName: stepName},
	})
}

func (p *Publisher) Completed(ctx context.Context, userID uuid.UUID, ev models.CompletedEvent) {
	p.Publish(ctx, userID, models.WSMessage{Type: "completed", Payload: ev})
}

func (p *Publisher) Failed(ctx context.Context, userID uuid.UUID, ev models.ErrorEvent) {
	p.Publish(ctx, userID, models.WSMessage{Type: "error", Payload: ev})
}
