package database

import (
	"edupath_backend/internal/config"
	"edupath_backend/internal/model"
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.Charset,
		cfg.Database.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	// release 模式默认跳过自动迁移，除非显式指定 -migrate
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		log.Println("Database migration completed")
		seedDemoGraph(db)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Learner{},
		&model.ContentNode{},
		&model.ContentPrerequisite{},
		&model.Enrollment{},
		&model.Assessment{},
		&model.Question{},
		&model.AssessmentAttempt{},
		&model.ProgressRecord{},
		&model.Roadmap{},
		&model.LearningPathItem{},
	)
}

// seedDemoGraph inserts a small starter course the first time the
// service runs against an empty database: one course, two lessons, a
// mandatory assessment gating the second lesson.
func seedDemoGraph(db *gorm.DB) {
	var count int64
	db.Model(&model.ContentNode{}).Count(&count)
	if count > 0 {
		return
	}

	course := &model.ContentNode{
		Kind:            model.KindCourse,
		Title:           "Introduction to Programming",
		DurationMinutes: 240,
	}
	if err := db.Create(course).Error; err != nil {
		return
	}

	lesson1 := &model.ContentNode{
		Kind:            model.KindLesson,
		Title:           "Variables and Types",
		CourseID:        course.ID,
		Order:           1,
		DurationMinutes: 45,
	}
	db.Create(lesson1)

	answer, _ := json.Marshal([]string{"int"})
	topics, _ := json.Marshal([]string{"types"})
	assessment := &model.Assessment{
		ContentID:           lesson1.ID,
		Title:               "Variables and Types Check",
		MinimumPassingScore: 70,
		Questions: []model.Question{
			{
				Type:           model.QuestionMultipleChoice,
				Prompt:         "Which type holds whole numbers?",
				Options:        json.RawMessage(`["int","float","string","bool"]`),
				CorrectAnswers: answer,
				Points:         10,
				Difficulty:     "easy",
				Topics:         topics,
				Order:          1,
			},
		},
	}
	if err := db.Create(assessment).Error; err == nil {
		db.Model(lesson1).Update("mandatory_assessment_id", assessment.ID)
	}

	lesson2 := &model.ContentNode{
		Kind:            model.KindLesson,
		Title:           "Control Flow",
		CourseID:        course.ID,
		Order:           2,
		DurationMinutes: 60,
	}
	if err := db.Create(lesson2).Error; err != nil {
		return
	}
	db.Create(&model.ContentPrerequisite{
		ContentID:      lesson2.ID,
		PrerequisiteID: lesson1.ID,
		Position:       0,
	})
}
