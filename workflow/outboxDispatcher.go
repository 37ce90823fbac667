package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxDispatcher publishes committed outbox records to Pub/Sub. Records are
// written transactionally by the mutation paths; the dispatcher is the only
// component that flips them to Published.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:           db,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		BatchSize:    50,
		PollInterval: 500 * time.Millisecond,
		MaxAttempts:  20,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce publishes one batch of pending records.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) {
	db := d.DB
	if db == nil {
		return
	}

	var pending []models.OutboxMessageRecord
	q := db.WithContext(ctx).
		Where("publish_status = ?", models.OutboxPublishStatusPending).
		Order("id ASC").
		Limit(d.BatchSize)
	if db.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	if err := q.Find(&pending).Error; err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "DispatchOnce", "fetch pending", nil, err)
		return
	}

	for _, record := range pending {
		msg := config.PubSubMessage{
			ID:            record.ID,
			CompanyId:     record.CompanyId,
			OccurredAt:    record.OccurredAt,
			ReferenceId:   record.ReferenceId,
			ReferenceType: string(record.ReferenceType),
			Action:        string(record.Action),
			OldObj:        record.OldObj,
			NewObj:        record.NewObj,
			ActorId:       record.ActorId,
			ActorName:     record.ActorName,
			CorrelationId: record.CorrelationId,
		}

		msgId, err := config.PublishReportEvent(ctx, msg)
		if err != nil {
			d.markPublishFailed(ctx, record.ID, err, record.AttemptCount+1)
			continue
		}
		d.markPublishSent(ctx, record.ID, msgId)
	}
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordId int, pubsubMsgId string) {
	now := time.Now().UTC()
	err := d.DB.WithContext(ctx).Model(&models.OutboxMessageRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"PublishStatus": models.OutboxPublishStatusPublished,
			"PublishedAt":   now,
			"MessageId":     pubsubMsgId,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "markPublishSent", "update record", recordId, err)
	}
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, recordId int, cause error, attempt int) {
	updates := map[string]interface{}{
		"AttemptCount": attempt,
	}
	if attempt >= d.MaxAttempts {
		updates["PublishStatus"] = models.OutboxPublishStatusDead
	}
	err := d.DB.WithContext(ctx).Model(&models.OutboxMessageRecord{}).
		Where("id = ?", recordId).
		Updates(updates).Error
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "markPublishFailed", "update record", recordId, err)
	}
	config.LogError(d.Logger, "outboxDispatcher.go", "markPublishFailed", "publish", recordId, cause)
}
