package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lumeodev/cra_backend/utils"
	"gorm.io/gorm"
)

// OutboxMessageRecord is the transactional-outbox row. It is written inside
// the same transaction as the mutation it describes and published to Pub/Sub
// by the dispatcher after commit. This is event plumbing for downstream
// consumers; the audit ledger is separate and gates the lock commit itself.
type OutboxMessageRecord struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	CompanyId     string              `gorm:"index;not null" json:"company_id"`
	OccurredAt    time.Time           `gorm:"not null" json:"occurred_at"`
	ReferenceId   int                 `gorm:"index;not null" json:"reference_id"`
	ReferenceType OutboxReferenceType `gorm:"size:32;not null" json:"reference_type"`
	Action        OutboxAction        `gorm:"size:32;not null" json:"action"`
	NewObj        []byte              `json:"new_obj"`
	OldObj        []byte              `json:"old_obj"`
	ActorId       int                 `json:"actor_id"`
	ActorName     string              `gorm:"size:255" json:"actor_name"`
	PublishStatus OutboxPublishStatus `gorm:"size:32;index;not null;default:Pending" json:"publish_status"`
	PublishedAt   *time.Time          `json:"published_at"`
	MessageId     string              `gorm:"size:255" json:"message_id"`
	AttemptCount  int                 `gorm:"default:0" json:"attempt_count"`
	CorrelationId string              `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishReportEvent writes the event record inside the caller's DB
// transaction but does NOT publish to Pub/Sub. Publishing happens
// asynchronously after commit (workflow.DispatchOutbox).
func PublishReportEvent(ctx context.Context, tx *gorm.DB, companyId string, refId int, refType OutboxReferenceType, obj interface{}, oldObj interface{}, action OutboxAction) error {
	var newObjInByte []byte
	var oldObjInByte []byte
	var err error

	if obj != nil {
		newObjInByte, err = json.Marshal(obj)
		if err != nil {
			return err
		}
	}
	if oldObj != nil {
		oldObjInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	var actorId int
	var actorName string
	if ctx != nil {
		actorId, _ = utils.GetUserIdFromContext(ctx)
		actorName, _ = utils.GetUserNameFromContext(ctx)
	}

	record := OutboxMessageRecord{
		CompanyId:     companyId,
		OccurredAt:    time.Now().UTC(),
		ReferenceId:   refId,
		ReferenceType: refType,
		Action:        action,
		NewObj:        newObjInByte,
		OldObj:        oldObjInByte,
		ActorId:       actorId,
		ActorName:     actorName,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
