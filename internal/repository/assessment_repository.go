package repository

import (
	"edupath_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) CreateAssessment(a *model.Assessment) error {
	return r.DB.Create(a).Error
}

// FindAssessmentByID loads the assessment with its questions in
// declared order.
func (r *AssessmentRepository) FindAssessmentByID(id string) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("`order` asc, created_at asc")
		}).
		Where("id = ?", id).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssessmentRepository) FindAssessmentByContent(contentID string) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("`order` asc, created_at asc")
		}).
		Where("content_id = ?", contentID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssessmentRepository) ListAssessments(page, limit int) ([]model.Assessment, int64, error) {
	var as []model.Assessment
	var total int64
	query := r.DB.Model(&model.Assessment{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&as).Error
	return as, total, err
}

func (r *AssessmentRepository) CreateAttempt(attempt *model.AssessmentAttempt) error {
	return r.DB.Create(attempt).Error
}

func (r *AssessmentRepository) UpdateAttempt(attempt *model.AssessmentAttempt) error {
	return r.DB.Save(attempt).Error
}

func (r *AssessmentRepository) FindAttemptByID(id uint) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	err := r.DB.First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssessmentRepository) CountAttempts(assessmentID string, learnerID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.AssessmentAttempt{}).
		Where("assessment_id = ? AND learner_id = ?", assessmentID, learnerID).
		Count(&count).Error
	return count, err
}

func (r *AssessmentRepository) ListAttempts(assessmentID string, learnerID uint) ([]model.AssessmentAttempt, error) {
	var attempts []model.AssessmentAttempt
	err := r.DB.
		Where("assessment_id = ? AND learner_id = ?", assessmentID, learnerID).
		Order("attempt_number asc").
		Find(&attempts).Error
	return attempts, err
}

// FindOpenAttempt returns the unfinalized attempt for the pair, if any.
func (r *AssessmentRepository) FindOpenAttempt(assessmentID string, learnerID uint) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	err := r.DB.
		Where("assessment_id = ? AND learner_id = ? AND status = ?",
			assessmentID, learnerID, model.AttemptInProgress).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAttemptByNumber resolves one attempt by its per-pair sequence
// number, used for idempotent submit retries.
func (r *AssessmentRepository) FindAttemptByNumber(assessmentID string, learnerID uint, number int) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	err := r.DB.
		Where("assessment_id = ? AND learner_id = ? AND attempt_number = ?",
			assessmentID, learnerID, number).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// BestAttempt returns the finalized attempt with the highest score.
func (r *AssessmentRepository) BestAttempt(assessmentID string, learnerID uint) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	err := r.DB.
		Where("assessment_id = ? AND learner_id = ? AND status <> ?",
			assessmentID, learnerID, model.AttemptInProgress).
		Order("score desc, attempt_number asc").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// HasPassedAttempt reports whether any finalized attempt passed.
func (r *AssessmentRepository) HasPassedAttempt(assessmentID string, learnerID uint) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	err := r.DB.
		Where("assessment_id = ? AND learner_id = ? AND passed = ?", assessmentID, learnerID, true).
		Order("attempt_number asc").
		First(&a).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListExpiredOpenAttempts finds in-progress attempts of timed
// assessments whose deadline has passed; the sweeper finalizes them.
func (r *AssessmentRepository) ListExpiredOpenAttempts(now time.Time) ([]model.AssessmentAttempt, error) {
	var attempts []model.AssessmentAttempt
	err := r.DB.
		Joins("JOIN assessments ON assessments.id = assessment_attempts.assessment_id").
		Where("assessment_attempts.status = ?", model.AttemptInProgress).
		Where("assessments.time_limit > 0").
		Where("assessment_attempts.started_at < ?", now).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}

	expired := attempts[:0]
	for _, a := range attempts {
		var assessment model.Assessment
		if err := r.DB.Select("time_limit").Where("id = ?", a.AssessmentID).First(&assessment).Error; err != nil {
			continue
		}
		deadline := a.StartedAt.Add(time.Duration(assessment.TimeLimit) * time.Minute)
		if now.After(deadline) {
			expired = append(expired, a)
		}
	}
	return expired, nil
}
