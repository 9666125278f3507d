package service

import (
	"testing"

	"edupath_backend/internal/model"
	"edupath_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateContent_LessonRequiresCourse(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.content.CreateContent(&CreateContentRequest{Kind: model.KindLesson, Title: "Orphan"})
	var validation *util.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "courseId", validation.Field)
}

func TestCreateContent_CourseCannotHavePrerequisites(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "First Course")

	_, err := env.content.CreateContent(&CreateContentRequest{
		Kind:            model.KindCourse,
		Title:           "Second Course",
		PrerequisiteIDs: []string{course.ID},
	})
	var validation *util.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "prerequisiteIds", validation.Field)
}

func TestCreateContent_RejectsUnknownAndDuplicatePrerequisites(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "Course")
	lesson := env.createLesson(t, course.ID, "Lesson", 0)

	_, err := env.content.CreateContent(&CreateContentRequest{
		Kind:            model.KindLesson,
		Title:           "Bad Prereq",
		CourseID:        course.ID,
		PrerequisiteIDs: []string{"no-such-node"},
	})
	var notFound *util.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "no-such-node", notFound.ID)

	_, err = env.content.CreateContent(&CreateContentRequest{
		Kind:            model.KindLesson,
		Title:           "Dup Prereq",
		CourseID:        course.ID,
		PrerequisiteIDs: []string{lesson.ID, lesson.ID},
	})
	var validation *util.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "prerequisiteIds", validation.Field)
}

func TestUpdatePrerequisites_RejectsSelfReference(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "Course")
	lesson := env.createLesson(t, course.ID, "Lesson", 0)

	_, err := env.content.UpdatePrerequisites(lesson.ID, []string{lesson.ID})
	require.ErrorIs(t, err, util.ErrCycleDetected)
}

func TestUpdatePrerequisites_RejectsCycle(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "Course")
	lessonA := env.createLesson(t, course.ID, "A", 0)
	lessonB := env.createLesson(t, course.ID, "B", 1, lessonA.ID)
	lessonC := env.createLesson(t, course.ID, "C", 2, lessonB.ID)

	// A -> B -> C exists; closing C -> A would be a cycle.
	_, err := env.content.UpdatePrerequisites(lessonA.ID, []string{lessonC.ID})
	require.ErrorIs(t, err, util.ErrCycleDetected)

	// Replacing B's edges with a harmless set is fine.
	updated, err := env.content.UpdatePrerequisites(lessonB.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, updated.PrerequisiteIDs())

	// With B detached from A, the chain back to A is broken and the
	// same edge is now legal.
	_, err = env.content.UpdatePrerequisites(lessonA.ID, []string{lessonC.ID})
	require.NoError(t, err)
}

func TestUpdatePrerequisites_ReplacesEdgeSet(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "Course")
	lessonA := env.createLesson(t, course.ID, "A", 0)
	lessonB := env.createLesson(t, course.ID, "B", 1)
	lessonC := env.createLesson(t, course.ID, "C", 2, lessonA.ID)

	updated, err := env.content.UpdatePrerequisites(lessonC.ID, []string{lessonB.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{lessonB.ID}, updated.PrerequisiteIDs())
}

func TestEnroll_RejectsNonCourse(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "enroll@example.com")
	course := env.createCourse(t, "Course")
	lesson := env.createLesson(t, course.ID, "Lesson", 0)

	err := env.content.Enroll(learner.ID, lesson.ID)
	var validation *util.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "courseId", validation.Field)
}

func TestEnroll_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createLearner(t, "twice@example.com")
	course := env.createCourse(t, "Course")

	require.NoError(t, env.content.Enroll(learner.ID, course.ID))
	require.NoError(t, env.content.Enroll(learner.ID, course.ID))

	courses, err := env.content.EnrolledCourses(learner.ID)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, course.ID, courses[0].ID)
}

func TestListCourseContent_OrdersByDeclaredOrder(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "Course")
	second := env.createLesson(t, course.ID, "Second", 1)
	first := env.createLesson(t, course.ID, "First", 0)

	nodes, err := env.content.ListCourseContent(course.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, first.ID, nodes[0].ID)
	assert.Equal(t, second.ID, nodes[1].ID)
}
