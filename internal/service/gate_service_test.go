package service

import (
	"context"
	"edupath_backend/internal/model"
	"edupath_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanAccess_NoPrerequisites(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "open@example.com")
	_, lesson1, _, _ := env.createGatedLessons(t)

	decision, err := env.gate.CanAccess(learner.ID, lesson1.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.FailingPrerequisites)
}

func TestCanAccess_UnknownContent(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "missing@example.com")

	_, err := env.gate.CanAccess(learner.ID, "no-such-id")
	var notFound *util.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "content", notFound.Resource)
}

func TestCanAccess_UnknownLearner(t *testing.T) {
	env := newTestEnv(t)
	_, lesson1, _, _ := env.createGatedLessons(t)

	_, err := env.gate.CanAccess(9999, lesson1.ID)
	var notFound *util.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "learner", notFound.Resource)
}

func TestCanAccess_BlockedByIncompletePrerequisite(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "blocked@example.com")
	_, lesson1, lesson2, _ := env.createGatedLessons(t)

	decision, err := env.gate.CanAccess(learner.ID, lesson2.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, lesson1.ID, decision.BlockedBy)
	require.Len(t, decision.FailingPrerequisites, 1)
	assert.Equal(t, ReasonNotCompleted, decision.FailingPrerequisites[0].Reason)
	assert.Equal(t, "Variables and Types", decision.FailingPrerequisites[0].Title)
}

func TestCanAccess_BlockedByFailedMandatoryAssessment(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "failed@example.com")
	_, lesson1, lesson2, assessment := env.createGatedLessons(t)

	env.completeContent(t, learner.ID, lesson1.ID)

	// Score 0 < 70: completion alone does not satisfy the gate.
	_, err := env.assessment.SubmitAttempt(context.Background(), learner.ID, assessment.ID,
		[]model.SubmittedAnswer{{QuestionID: assessment.Questions[0].ID, Response: "Wrong option"}}, 60, 0)
	require.NoError(t, err)

	decision, err := env.gate.CanAccess(learner.ID, lesson2.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	require.Len(t, decision.FailingPrerequisites, 1)
	assert.Equal(t, ReasonAssessmentNotPassed, decision.FailingPrerequisites[0].Reason)
}

func TestCanAccess_UnlockedAfterPassingScore(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "passed@example.com")
	_, lesson1, lesson2, assessment := env.createGatedLessons(t)

	env.completeContent(t, learner.ID, lesson1.ID)

	_, err := env.assessment.SubmitAttempt(context.Background(), learner.ID, assessment.ID,
		[]model.SubmittedAnswer{{QuestionID: assessment.Questions[0].ID, Response: "A named storage location"}}, 60, 0)
	require.NoError(t, err)

	decision, err := env.gate.CanAccess(learner.ID, lesson2.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCanAccess_ReportsAllFailingPrerequisitesInDeclaredOrder(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "multi@example.com")
	course := env.createCourse(t, "Algorithms")
	a := env.createLesson(t, course.ID, "Arrays", 0)
	b := env.createLesson(t, course.ID, "Sorting", 1)
	c := env.createLesson(t, course.ID, "Searching", 2, a.ID, b.ID)

	decision, err := env.gate.CanAccess(learner.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	require.Len(t, decision.FailingPrerequisites, 2)
	assert.Equal(t, a.ID, decision.FailingPrerequisites[0].ContentID)
	assert.Equal(t, b.ID, decision.FailingPrerequisites[1].ContentID)
	assert.Equal(t, a.ID, decision.BlockedBy)
}

func TestUpdateProgress_ValidatesRange(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "range@example.com")
	_, lesson1, _, _ := env.createGatedLessons(t)

	_, _, err := env.gate.UpdateProgress(context.Background(), learner.ID, lesson1.ID, &ProgressUpdate{CompletionPercentage: 101})
	var validation *util.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "completionPercentage", validation.Field)
}

func TestUpdateProgress_CompletionIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "monotonic@example.com")
	_, lesson1, _, _ := env.createGatedLessons(t)

	record, completed, err := env.gate.UpdateProgress(context.Background(), learner.ID, lesson1.ID, &ProgressUpdate{CompletionPercentage: 60, TimeSpentDelta: 120})
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, model.ProgressInProgress, record.Status)

	record, completed, err = env.gate.UpdateProgress(context.Background(), learner.ID, lesson1.ID, &ProgressUpdate{CompletionPercentage: 100, TimeSpentDelta: 60})
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, model.ProgressCompleted, record.Status)
	assert.Equal(t, 180, record.TimeSpent)

	// A later lower report keeps completion and still accrues time.
	record, completed, err = env.gate.UpdateProgress(context.Background(), learner.ID, lesson1.ID, &ProgressUpdate{CompletionPercentage: 20, TimeSpentDelta: 30})
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, model.ProgressCompleted, record.Status)
	assert.Equal(t, 100, record.CompletionPercentage)
	assert.Equal(t, 210, record.TimeSpent)
}

func TestCascadeUnlocks_FlipsRoadmapItem(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "cascade@example.com")
	course, lesson1, lesson2, assessment := env.createGatedLessons(t)

	require.NoError(t, env.content.Enroll(learner.ID, course.ID))
	_, err := env.roadmap.Generate(context.Background(), learner.ID)
	require.NoError(t, err)

	rm, err := env.roadmap.Get(learner.ID)
	require.NoError(t, err)
	unlockedOf := func(contentID string) bool {
		for _, item := range rm.Items {
			if item.ContentID == contentID {
				return item.IsUnlocked
			}
		}
		t.Fatalf("item %s not on roadmap", contentID)
		return false
	}
	assert.True(t, unlockedOf(lesson1.ID))
	assert.False(t, unlockedOf(lesson2.ID))

	env.completeContent(t, learner.ID, lesson1.ID)
	_, err = env.assessment.SubmitAttempt(context.Background(), learner.ID, assessment.ID,
		[]model.SubmittedAnswer{{QuestionID: assessment.Questions[0].ID, Response: "A named storage location"}}, 60, 0)
	require.NoError(t, err)

	rm, err = env.roadmap.Get(learner.ID)
	require.NoError(t, err)
	assert.True(t, unlockedOf(lesson2.ID))
}

func TestRetakeAfterFailureUnlocksDependent(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "retake@example.com")
	course := env.createCourse(t, "Networks")
	lesson1 := env.createLesson(t, course.ID, "Sockets", 0)
	lesson2 := env.createLesson(t, course.ID, "Protocols", 1, lesson1.ID)

	assessment, err := env.assessment.CreateAssessment(&CreateAssessmentRequest{
		ContentID:           lesson1.ID,
		Title:               "Sockets Check",
		MinimumPassingScore: 70,
		Mandatory:           true,
		Questions: []model.Question{
			multipleChoice("Q1", "Right", 1),
			multipleChoice("Q2", "Also right", 1),
		},
	})
	require.NoError(t, err)

	env.completeContent(t, learner.ID, lesson1.ID)

	// First take: 1 of 2 points, score 50, below the pass mark.
	first, err := env.assessment.SubmitAttempt(context.Background(), learner.ID, assessment.ID,
		[]model.SubmittedAnswer{
			{QuestionID: assessment.Questions[0].ID, Response: "Right"},
			{QuestionID: assessment.Questions[1].ID, Response: "Wrong option"},
		}, 60, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, first.Score)
	assert.False(t, first.Passed)

	decision, err := env.gate.CanAccess(learner.ID, lesson2.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, lesson1.ID, decision.BlockedBy)

	// Retake passes; best score moves up and the dependent opens.
	second, err := env.assessment.SubmitAttempt(context.Background(), learner.ID, assessment.ID,
		[]model.SubmittedAnswer{
			{QuestionID: assessment.Questions[0].ID, Response: "Right"},
			{QuestionID: assessment.Questions[1].ID, Response: "Also right"},
		}, 60, 0)
	require.NoError(t, err)
	assert.True(t, second.Passed)
	assert.Equal(t, 2, second.AttemptNumber)

	record, err := env.progressRepo.Find(learner.ID, lesson1.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, record.BestScore)

	decision, err = env.gate.CanAccess(learner.ID, lesson2.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
