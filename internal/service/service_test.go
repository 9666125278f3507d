package service

import (
	"context"
	"edupath_backend/internal/config"
	"edupath_backend/internal/model"
	"edupath_backend/internal/repository"
	"edupath_backend/pkg/database"
	"edupath_backend/pkg/logger"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	db  *gorm.DB
	rdb *redis.Client

	learnerRepo    *repository.LearnerRepository
	contentRepo    *repository.ContentRepository
	assessmentRepo *repository.AssessmentRepository
	progressRepo   *repository.ProgressRepository
	roadmapRepo    *repository.RoadmapRepository

	events     *EventService
	locker     *LearnerLocker
	advisor    *stubAdvisor
	gate       *GateService
	content    *ContentService
	roadmap    *RoadmapService
	assessment *AssessmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger.Log = zap.NewNop()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// One connection keeps every query on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	env := &testEnv{
		db:             db,
		rdb:            rdb,
		learnerRepo:    repository.NewLearnerRepository(db),
		contentRepo:    repository.NewContentRepository(db),
		assessmentRepo: repository.NewAssessmentRepository(db),
		progressRepo:   repository.NewProgressRepository(db),
		roadmapRepo:    repository.NewRoadmapRepository(db),
		advisor:        &stubAdvisor{},
	}

	env.events = NewEventService(rdb)
	env.locker = NewLearnerLocker(rdb)
	env.gate = NewGateService(env.learnerRepo, env.contentRepo, env.progressRepo, env.assessmentRepo, env.roadmapRepo, env.events)
	env.content = NewContentService(env.contentRepo, env.learnerRepo)
	env.roadmap = NewRoadmapService(
		env.roadmapRepo,
		env.contentRepo,
		env.learnerRepo,
		env.progressRepo,
		env.assessmentRepo,
		env.gate,
		env.advisor,
		env.locker,
		env.events,
		config.AdvisorConfig{
			Timeout:          100 * time.Millisecond,
			MaxRetries:       2,
			BaseDelay:        time.Millisecond,
			BreakerThreshold: 5,
			BreakerTimeout:   time.Second,
		},
	)
	env.assessment = NewAssessmentService(
		env.assessmentRepo,
		env.contentRepo,
		env.progressRepo,
		env.gate,
		env.roadmap,
		env.locker,
		env.events,
	)
	return env
}

// stubAdvisor plays back queued results; when the queue is empty it
// repeats the last entry. onCall lets tests observe state while the
// advisor request is in flight.
type stubAdvisor struct {
	queue  []stubResult
	calls  int
	onCall func()
}

type stubResult struct {
	resp *AdvisorResponse
	err  error
}

func (a *stubAdvisor) Recommend(ctx context.Context, req *AdvisorRequest) (*AdvisorResponse, error) {
	a.calls++
	if a.onCall != nil {
		a.onCall()
	}
	if len(a.queue) == 0 {
		return nil, &stubEmptyQueueError{}
	}
	res := a.queue[0]
	if len(a.queue) > 1 {
		a.queue = a.queue[1:]
	}
	return res.resp, res.err
}

type stubEmptyQueueError struct{}

func (*stubEmptyQueueError) Error() string { return "stub advisor has no queued result" }

func (a *stubAdvisor) respond(resp *AdvisorResponse) { a.queue = append(a.queue, stubResult{resp: resp}) }

func (a *stubAdvisor) failWith(err error) { a.queue = append(a.queue, stubResult{err: err}) }

func (env *testEnv) createLearner(t *testing.T, email string) *model.Learner {
	t.Helper()
	learner := &model.Learner{Name: "Test Learner", Email: email, Password: "x", Role: model.RoleLearner, Language: "en"}
	require.NoError(t, env.learnerRepo.Create(learner))
	return learner
}

func (env *testEnv) createCourse(t *testing.T, title string) *model.ContentNode {
	t.Helper()
	node, err := env.content.CreateContent(&CreateContentRequest{Kind: model.KindCourse, Title: title})
	require.NoError(t, err)
	return node
}

func (env *testEnv) createLesson(t *testing.T, courseID, title string, order int, prereqs ...string) *model.ContentNode {
	t.Helper()
	node, err := env.content.CreateContent(&CreateContentRequest{
		Kind:            model.KindLesson,
		Title:           title,
		CourseID:        courseID,
		Order:           order,
		DurationMinutes: 30,
		PrerequisiteIDs: prereqs,
	})
	require.NoError(t, err)
	return node
}

// multipleChoice builds a valid single-answer question worth the given
// points.
func multipleChoice(prompt, answer string, points int, topics ...string) model.Question {
	options, _ := json.Marshal([]string{answer, "Wrong option", "Another wrong option"})
	correct, _ := json.Marshal([]string{answer})
	q := model.Question{
		Type:           model.QuestionMultipleChoice,
		Prompt:         prompt,
		Options:        options,
		CorrectAnswers: correct,
		Points:         points,
	}
	if len(topics) > 0 {
		t, _ := json.Marshal(topics)
		q.Topics = t
	}
	return q
}

func essayQuestion(prompt string, points int) model.Question {
	return model.Question{Type: model.QuestionEssay, Prompt: prompt, Points: points}
}

// createGatedLessons builds the canonical two-lesson fixture: lesson1
// carries a mandatory assessment with pass mark 70, lesson2 requires
// lesson1.
func (env *testEnv) createGatedLessons(t *testing.T) (course, lesson1, lesson2 *model.ContentNode, assessment *model.Assessment) {
	t.Helper()
	course = env.createCourse(t, "Introduction to Programming")
	lesson1 = env.createLesson(t, course.ID, "Variables and Types", 0)
	lesson2 = env.createLesson(t, course.ID, "Control Flow", 1, lesson1.ID)

	var err error
	assessment, err = env.assessment.CreateAssessment(&CreateAssessmentRequest{
		ContentID:           lesson1.ID,
		Title:               "Variables Check",
		MinimumPassingScore: 70,
		Mandatory:           true,
		Questions: []model.Question{
			multipleChoice("What is a variable?", "A named storage location", 1, "variables"),
		},
	})
	require.NoError(t, err)

	// Reload lesson1 so MandatoryAssessmentID is populated.
	lesson1, err = env.content.GetContent(lesson1.ID)
	require.NoError(t, err)
	return course, lesson1, lesson2, assessment
}

func (env *testEnv) completeContent(t *testing.T, learnerID uint, contentID string) {
	t.Helper()
	_, _, err := env.gate.UpdateProgress(context.Background(), learnerID, contentID, &ProgressUpdate{CompletionPercentage: 100})
	require.NoError(t, err)
}
