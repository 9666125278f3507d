package repository

import (
	"edupath_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type LearnerRepository struct {
	DB *gorm.DB
}

func NewLearnerRepository(db *gorm.DB) *LearnerRepository {
	return &LearnerRepository{DB: db}
}

func (r *LearnerRepository) Create(learner *model.Learner) error {
	return r.DB.Create(learner).Error
}

func (r *LearnerRepository) FindByID(id uint) (*model.Learner, error) {
	var l model.Learner
	err := r.DB.First(&l, id).Error
	return &l, err
}

func (r *LearnerRepository) FindByEmail(email string) (*model.Learner, error) {
	var l model.Learner
	err := r.DB.Where("email = ?", email).First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LearnerRepository) UpdateLastLogin(id uint) error {
	return r.DB.Model(&model.Learner{}).Where("id = ?", id).Update("last_login", time.Now()).Error
}

func (r *LearnerRepository) Enroll(learnerID uint, courseID string) error {
	var existing model.Enrollment
	err := r.DB.Where("learner_id = ? AND course_id = ?", learnerID, courseID).First(&existing).Error
	if err == nil {
		return nil // already enrolled
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.DB.Create(&model.Enrollment{LearnerID: learnerID, CourseID: courseID}).Error
}

func (r *LearnerRepository) EnrolledCourseIDs(learnerID uint) ([]string, error) {
	var ids []string
	err := r.DB.Model(&model.Enrollment{}).
		Where("learner_id = ?", learnerID).
		Order("created_at asc").
		Pluck("course_id", &ids).Error
	return ids, err
}
