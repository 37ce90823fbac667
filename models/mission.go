package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/utils"
	"gorm.io/plugin/soft_delete"
)

// Mission is a contractual engagement referenced by report entries.
type Mission struct {
	ID         int                   `gorm:"primary_key" json:"id"`
	CompanyId  string                `gorm:"index;not null" json:"company_id"`
	Title      string                `gorm:"size:255;not null" json:"title"`
	ClientName string                `gorm:"size:255" json:"client_name"`
	DailyRate  int64                 `gorm:"default:0" json:"daily_rate"`
	IsActive   *bool                 `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  soft_delete.DeletedAt `gorm:"softDelete:milli;default:0" json:"-"`
}

func (m *Mission) GetId() int {
	return m.ID
}

type NewMission struct {
	Title      string `json:"title" binding:"required"`
	ClientName string `json:"client_name"`
	DailyRate  int64  `json:"daily_rate"`
}

func CreateMission(ctx context.Context, input *NewMission) (*Mission, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	mission := Mission{
		CompanyId:  companyId,
		Title:      input.Title,
		ClientName: input.ClientName,
		DailyRate:  input.DailyRate,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&mission).Error; err != nil {
		return nil, err
	}
	return &mission, nil
}

func missionCacheKey(companyId string, id int) string {
	return fmt.Sprintf("mission-%s-%d", companyId, id)
}

// GetMission reads through the Redis cache when available, falling back to
// the database. Missions change rarely; UpdateMission invalidates the key.
func GetMission(ctx context.Context, id int) (*Mission, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	cacheKey := missionCacheKey(companyId, id)
	var cached Mission
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	mission, err := utils.FetchModel[Mission](ctx, companyId, id)
	if err != nil {
		return nil, ErrMissionNotFound
	}
	if err := config.SetRedisObject(cacheKey, mission, 10*time.Minute); err != nil {
		return nil, err
	}
	return mission, nil
}

// MissionChanges carries the mutable fields of an update; nil means unchanged.
type MissionChanges struct {
	Title      *string `json:"title"`
	ClientName *string `json:"client_name"`
	DailyRate  *int64  `json:"daily_rate"`
	IsActive   *bool   `json:"is_active"`
}

func UpdateMission(ctx context.Context, id int, changes *MissionChanges) (*Mission, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	mission, err := utils.FetchModel[Mission](ctx, companyId, id)
	if err != nil {
		return nil, ErrMissionNotFound
	}

	updates := map[string]interface{}{}
	if changes.Title != nil {
		if *changes.Title == "" {
			return nil, errors.New("title cannot be empty")
		}
		updates["Title"] = *changes.Title
	}
	if changes.ClientName != nil {
		updates["ClientName"] = *changes.ClientName
	}
	if changes.DailyRate != nil {
		if *changes.DailyRate < 0 {
			return nil, errors.New("daily rate cannot be negative")
		}
		updates["DailyRate"] = *changes.DailyRate
	}
	if changes.IsActive != nil {
		updates["IsActive"] = *changes.IsActive
	}
	if len(updates) == 0 {
		return mission, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(mission).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey(missionCacheKey(companyId, id)); err != nil {
		return nil, err
	}
	return mission, nil
}

func ListMissions(ctx context.Context) ([]*Mission, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchAllModels[Mission](ctx, companyId)
}

// validateMissionUsable checks that the mission exists, belongs to the
// company and is active. Used by entry create/update.
func validateMissionUsable(ctx context.Context, companyId string, missionId int) error {
	count, err := utils.ResourceCountWhere[Mission](ctx, companyId, "id = ? AND is_active = ?", missionId, true)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrMissionNotFound
	}
	return nil
}
