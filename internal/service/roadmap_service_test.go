package service

import (
	"context"
	"errors"
	"testing"

	"edupath_backend/internal/model"
	"edupath_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (env *testEnv) enrolledLearner(t *testing.T) (*model.Learner, *model.ContentNode, *model.ContentNode, *model.ContentNode) {
	t.Helper()
	learner := env.createLearner(t, "roadmap@example.com")
	course := env.createCourse(t, "Go From Scratch")
	lesson1 := env.createLesson(t, course.ID, "Basics", 0)
	lesson2 := env.createLesson(t, course.ID, "Functions", 1, lesson1.ID)
	require.NoError(t, env.content.Enroll(learner.ID, course.ID))
	return learner, course, lesson1, lesson2
}

func TestGenerate_RequiresEnrollment(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "empty@example.com")

	_, err := env.roadmap.Generate(context.Background(), learner.ID)
	var validation *util.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "enrollments", validation.Field)
}

func TestGenerate_UsesAdvisorPath(t *testing.T) {
	env := newTestEnv(t)
	learner, _, lesson1, lesson2 := env.enrolledLearner(t)

	env.advisor.respond(&AdvisorResponse{
		LearningPath: []AdvisorPathItem{
			{ContentID: lesson1.ID, EstimatedTime: 45, Note: "Start here."},
			{ContentID: lesson2.ID},
		},
		Reasoning: "Basics first, then functions.",
	})

	rm, err := env.roadmap.Generate(context.Background(), learner.ID)
	require.NoError(t, err)

	assert.Equal(t, model.SourceAdvisor, rm.Source)
	assert.Equal(t, "Basics first, then functions.", rm.Reasoning)
	require.Len(t, rm.Items, 2)
	assert.Equal(t, lesson1.ID, rm.Items[0].ContentID)
	assert.Equal(t, 45, rm.Items[0].EstimatedTime)
	assert.Equal(t, "Start here.", rm.Items[0].Note)
	assert.True(t, rm.Items[0].IsUnlocked)
	// Falls back to the node's declared duration when the advisor
	// gives no estimate.
	assert.Equal(t, 30, rm.Items[1].EstimatedTime)
	assert.False(t, rm.Items[1].IsUnlocked)
	assert.Equal(t, 1, env.advisor.calls)
}

func TestGenerate_FallsBackWhenAdvisorFails(t *testing.T) {
	env := newTestEnv(t)
	learner, _, lesson1, lesson2 := env.enrolledLearner(t)

	env.advisor.failWith(&util.AdvisorError{Retryable: true, Err: errors.New("upstream 503")})

	rm, err := env.roadmap.Generate(context.Background(), learner.ID)
	require.NoError(t, err)

	assert.Equal(t, model.SourceFallback, rm.Source)
	require.Len(t, rm.Items, 2)
	assert.Equal(t, lesson1.ID, rm.Items[0].ContentID)
	assert.Equal(t, lesson2.ID, rm.Items[1].ContentID)
	// Fallback items have generator notes and no prerequisite
	// annotations; the gate enforces the real edges.
	for _, it := range rm.Items {
		assert.NotEmpty(t, it.Note)
		assert.Empty(t, it.DecodedPrerequisites())
	}
	// Initial call plus two retries for a retryable failure.
	assert.Equal(t, 3, env.advisor.calls)
}

func TestGenerate_NonRetryableErrorSkipsRetries(t *testing.T) {
	env := newTestEnv(t)
	learner, _, _, _ := env.enrolledLearner(t)

	env.advisor.failWith(&util.AdvisorError{Retryable: false, Err: errors.New("bad request")})

	rm, err := env.roadmap.Generate(context.Background(), learner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SourceFallback, rm.Source)
	assert.Equal(t, 1, env.advisor.calls)
}

func TestGenerate_RejectsAdvisorPathViolations(t *testing.T) {
	cases := []struct {
		name string
		path func(lesson1, lesson2 string) []AdvisorPathItem
	}{
		{
			name: "prerequisite after dependent",
			path: func(lesson1, lesson2 string) []AdvisorPathItem {
				return []AdvisorPathItem{{ContentID: lesson2}, {ContentID: lesson1}}
			},
		},
		{
			name: "unknown content id",
			path: func(lesson1, _ string) []AdvisorPathItem {
				return []AdvisorPathItem{{ContentID: lesson1}, {ContentID: "made-up-id"}}
			},
		},
		{
			name: "duplicate entry",
			path: func(lesson1, _ string) []AdvisorPathItem {
				return []AdvisorPathItem{{ContentID: lesson1}, {ContentID: lesson1}}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			learner, _, lesson1, lesson2 := env.enrolledLearner(t)
			env.advisor.respond(&AdvisorResponse{LearningPath: tc.path(lesson1.ID, lesson2.ID)})

			rm, err := env.roadmap.Generate(context.Background(), learner.ID)
			require.NoError(t, err)

			assert.Equal(t, model.SourceFallback, rm.Source)
			require.Len(t, rm.Items, 2)
			assert.Equal(t, lesson1.ID, rm.Items[0].ContentID)
			assert.Equal(t, lesson2.ID, rm.Items[1].ContentID)
		})
	}
}

func TestGenerate_RegenerateBumpsVersion(t *testing.T) {
	env := newTestEnv(t)
	learner, _, _, _ := env.enrolledLearner(t)

	// The generating placeholder takes version 1; the first replace to
	// an active roadmap lands on 2.
	first, err := env.roadmap.Generate(context.Background(), learner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Version)
	assert.Equal(t, model.RoadmapActive, first.Status)

	second, err := env.roadmap.Generate(context.Background(), learner.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.Version)
}

func TestGenerate_StartsInGeneratingState(t *testing.T) {
	env := newTestEnv(t)
	learner, _, lesson1, lesson2 := env.enrolledLearner(t)

	var during model.RoadmapStatus
	env.advisor.onCall = func() {
		if rm, err := env.roadmapRepo.FindByLearner(learner.ID); err == nil {
			during = rm.Status
		}
	}
	env.advisor.respond(&AdvisorResponse{
		LearningPath: []AdvisorPathItem{{ContentID: lesson1.ID}, {ContentID: lesson2.ID}},
		Reasoning:    "Basics first.",
	})

	rm, err := env.roadmap.Generate(context.Background(), learner.ID)
	require.NoError(t, err)

	assert.Equal(t, model.RoadmapGenerating, during)
	assert.Equal(t, model.RoadmapActive, rm.Status)
}

func TestAdapt_InsertsRemedialsForUnmetPrerequisites(t *testing.T) {
	env := newTestEnv(t)
	learner, _, lesson1, lesson2 := env.enrolledLearner(t)
	ctx := context.Background()

	_, err := env.roadmap.Generate(ctx, learner.ID)
	require.NoError(t, err)

	// Failing lesson2's assessment while lesson1 is still unmet
	// schedules a review of lesson1 directly before it; repeating the
	// failure does not duplicate the review.
	require.NoError(t, env.roadmap.Adapt(ctx, learner.ID, TriggerAssessmentFailed, lesson2.ID))
	require.NoError(t, env.roadmap.Adapt(ctx, learner.ID, TriggerAssessmentFailed, lesson2.ID))

	rm, err := env.roadmap.Get(learner.ID)
	require.NoError(t, err)
	require.Len(t, rm.Items, 3)
	assert.Equal(t, lesson1.ID, rm.Items[0].ContentID)
	assert.False(t, rm.Items[0].Remedial)
	assert.Equal(t, lesson1.ID, rm.Items[1].ContentID)
	assert.True(t, rm.Items[1].Remedial)
	assert.NotEmpty(t, rm.Items[1].Note)
	assert.Equal(t, lesson2.ID, rm.Items[2].ContentID)
	// The failed item stays locked behind its uncompleted review run.
	assert.False(t, rm.Items[2].IsUnlocked)

	require.NoError(t, env.roadmap.Adapt(ctx, learner.ID, TriggerAssessmentPassed, lesson2.ID))

	rm, err = env.roadmap.Get(learner.ID)
	require.NoError(t, err)
	require.Len(t, rm.Items, 2)
	for _, it := range rm.Items {
		assert.False(t, it.Remedial)
	}
	assert.Equal(t, model.ItemCompleted, rm.Items[1].CompletionStatus)
}

func TestAdapt_NoRemedialsWhenPrerequisitesWereMet(t *testing.T) {
	env := newTestEnv(t)
	learner, _, lesson1, _ := env.enrolledLearner(t)
	ctx := context.Background()

	_, err := env.roadmap.Generate(ctx, learner.ID)
	require.NoError(t, err)

	// lesson1 has no prerequisites, so a failed assessment on it has
	// nothing to remediate; retrying is the remedy.
	require.NoError(t, env.roadmap.Adapt(ctx, learner.ID, TriggerAssessmentFailed, lesson1.ID))

	rm, err := env.roadmap.Get(learner.ID)
	require.NoError(t, err)
	require.Len(t, rm.Items, 2)
	for _, it := range rm.Items {
		assert.False(t, it.Remedial)
	}
}

func TestAdapt_PassedAssessmentMarksItemCompleted(t *testing.T) {
	env := newTestEnv(t)
	learner, _, lesson1, _ := env.enrolledLearner(t)
	ctx := context.Background()

	_, err := env.roadmap.Generate(ctx, learner.ID)
	require.NoError(t, err)

	require.NoError(t, env.roadmap.Adapt(ctx, learner.ID, TriggerAssessmentPassed, lesson1.ID))

	rm, err := env.roadmap.Get(learner.ID)
	require.NoError(t, err)
	assert.Equal(t, lesson1.ID, rm.Items[0].ContentID)
	assert.Equal(t, model.ItemCompleted, rm.Items[0].CompletionStatus)
}

func TestAdapt_CompletesRoadmapWhenAllItemsDone(t *testing.T) {
	env := newTestEnv(t)
	learner, _, lesson1, lesson2 := env.enrolledLearner(t)
	ctx := context.Background()

	_, err := env.roadmap.Generate(ctx, learner.ID)
	require.NoError(t, err)

	env.completeContent(t, learner.ID, lesson1.ID)
	require.NoError(t, env.roadmap.Adapt(ctx, learner.ID, TriggerContentCompleted, lesson1.ID))

	rm, err := env.roadmap.Get(learner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoadmapActive, rm.Status)
	assert.Equal(t, model.ItemCompleted, rm.Items[0].CompletionStatus)

	env.completeContent(t, learner.ID, lesson2.ID)
	require.NoError(t, env.roadmap.Adapt(ctx, learner.ID, TriggerContentCompleted, lesson2.ID))

	rm, err = env.roadmap.Get(learner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoadmapCompleted, rm.Status)
}

func TestRoadmap_StatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	learner, _, lesson1, _ := env.enrolledLearner(t)
	ctx := context.Background()

	_, err := env.roadmap.Generate(ctx, learner.ID)
	require.NoError(t, err)

	require.NoError(t, env.roadmap.Pause(learner.ID))

	// Adaptation is a no-op while paused.
	require.NoError(t, env.roadmap.Adapt(ctx, learner.ID, TriggerAssessmentFailed, lesson1.ID))
	rm, err := env.roadmap.Get(learner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoadmapPaused, rm.Status)
	assert.Len(t, rm.Items, 2)

	// Pausing twice is rejected.
	var validation *util.ValidationError
	require.ErrorAs(t, env.roadmap.Pause(learner.ID), &validation)

	require.NoError(t, env.roadmap.Resume(learner.ID))
	require.NoError(t, env.roadmap.Complete(learner.ID))
	require.ErrorAs(t, env.roadmap.Resume(learner.ID), &validation)
}

func TestRoadmap_TransitionWithoutRoadmap(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "noroadmap@example.com")

	var notFound *util.NotFoundError
	require.ErrorAs(t, env.roadmap.Pause(learner.ID), &notFound)
}

func TestGenerate_BreakerRejectsAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	learner, _, _, _ := env.enrolledLearner(t)
	ctx := context.Background()

	env.advisor.failWith(&util.AdvisorError{Retryable: false, Err: errors.New("upstream down")})

	// Threshold is five consecutive failures; each Generate counts one.
	for i := 0; i < 5; i++ {
		rm, err := env.roadmap.Generate(ctx, learner.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SourceFallback, rm.Source)
	}
	require.Equal(t, 5, env.advisor.calls)

	// The open breaker short-circuits; the advisor is not called and
	// generation still succeeds on the fallback.
	rm, err := env.roadmap.Generate(ctx, learner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SourceFallback, rm.Source)
	assert.Equal(t, 5, env.advisor.calls)
}
