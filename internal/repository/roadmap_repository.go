package repository

import (
	"edupath_backend/internal/model"
	"edupath_backend/internal/util"

	"gorm.io/gorm"
)

type RoadmapRepository struct {
	DB *gorm.DB
}

func NewRoadmapRepository(db *gorm.DB) *RoadmapRepository {
	return &RoadmapRepository{DB: db}
}

func (r *RoadmapRepository) FindByLearner(learnerID uint) (*model.Roadmap, error) {
	var rm model.Roadmap
	err := r.DB.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index asc")
		}).
		Where("learner_id = ?", learnerID).First(&rm).Error
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func (r *RoadmapRepository) Create(rm *model.Roadmap) error {
	return r.DB.Create(rm).Error
}

// Replace atomically rewrites the roadmap's item list and metadata,
// guarded by expectedVersion. A version mismatch returns
// ConcurrencyConflictError; callers retry once against fresh state.
func (r *RoadmapRepository) Replace(rm *model.Roadmap, items []model.LearningPathItem, expectedVersion int) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Roadmap{}).
			Where("id = ? AND version = ?", rm.ID, expectedVersion).
			Updates(map[string]interface{}{
				"version":      expectedVersion + 1,
				"status":       rm.Status,
				"source":       rm.Source,
				"reasoning":    rm.Reasoning,
				"generated_at": rm.GeneratedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &util.ConcurrencyConflictError{Resource: "roadmap"}
		}

		if err := tx.Where("roadmap_id = ?", rm.ID).Delete(&model.LearningPathItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = 0
			items[i].RoadmapID = rm.ID
			items[i].OrderIndex = i
			if err := tx.Create(&items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateStatus performs a version-guarded status transition.
func (r *RoadmapRepository) UpdateStatus(id string, status model.RoadmapStatus, expectedVersion int) error {
	res := r.DB.Model(&model.Roadmap{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"status":  status,
			"version": expectedVersion + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &util.ConcurrencyConflictError{Resource: "roadmap"}
	}
	return nil
}

// SetItemUnlocked flips the unlock flag on the learner's path item for
// contentID. Returns whether a row changed from locked to unlocked.
func (r *RoadmapRepository) SetItemUnlocked(learnerID uint, contentID string, unlocked bool) (bool, error) {
	var rm model.Roadmap
	err := r.DB.Select("id").Where("learner_id = ?", learnerID).First(&rm).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	res := r.DB.Model(&model.LearningPathItem{}).
		Where("roadmap_id = ? AND content_id = ? AND is_unlocked <> ?", rm.ID, contentID, unlocked).
		Update("is_unlocked", unlocked)
	if res.Error != nil {
		return false, res.Error
	}
	return unlocked && res.RowsAffected > 0, nil
}
