package service

import (
	"context"
	"edupath_backend/pkg/logger"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Outbound event channels consumed by the UI/notification
// collaborators.
const (
	ChannelContentUnlocked = "events:content_unlocked"
	ChannelAttemptRecorded = "events:assessment_attempt_recorded"
	ChannelRoadmapUpdated  = "events:roadmap_updated"
)

type EventService struct {
	rdb *redis.Client
}

func NewEventService(rdb *redis.Client) *EventService {
	return &EventService{rdb: rdb}
}

type outboundEvent struct {
	LearnerID  uint      `json:"learnerId"`
	ContentID  string    `json:"contentId,omitempty"`
	AttemptID  uint      `json:"attemptId,omitempty"`
	RoadmapID  string    `json:"roadmapId,omitempty"`
	Passed     *bool     `json:"passed,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// publish is fire-and-forget: event delivery failures are logged, they
// never fail the triggering mutation.
func (s *EventService) publish(ctx context.Context, channel string, ev outboundEvent) {
	ev.OccurredAt = time.Now()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		logger.Log.Warn("event publish failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

func (s *EventService) ContentUnlocked(ctx context.Context, learnerID uint, contentID string) {
	s.publish(ctx, ChannelContentUnlocked, outboundEvent{LearnerID: learnerID, ContentID: contentID})
}

func (s *EventService) AttemptRecorded(ctx context.Context, learnerID uint, attemptID uint, passed bool) {
	s.publish(ctx, ChannelAttemptRecorded, outboundEvent{LearnerID: learnerID, AttemptID: attemptID, Passed: &passed})
}

func (s *EventService) RoadmapUpdated(ctx context.Context, learnerID uint, roadmapID string) {
	s.publish(ctx, ChannelRoadmapUpdated, outboundEvent{LearnerID: learnerID, RoadmapID: roadmapID})
}
