package service

import (
	"context"
	"edupath_backend/internal/model"
	"edupath_backend/internal/repository"
	"edupath_backend/internal/util"
	"edupath_backend/pkg/logger"
	"edupath_backend/pkg/monitoring"
	"encoding/json"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AssessmentService owns the attempt lifecycle: start, answer saving,
// submission and grading, expiry of timed attempts, and manual essay
// grading. All attempt mutations of one learner run under the
// learner's lease.
type AssessmentService struct {
	assessmentRepo *repository.AssessmentRepository
	contentRepo    *repository.ContentRepository
	progressRepo   *repository.ProgressRepository
	gate           *GateService
	roadmap        *RoadmapService
	locker         *LearnerLocker
	events         *EventService
}

func NewAssessmentService(
	assessmentRepo *repository.AssessmentRepository,
	contentRepo *repository.ContentRepository,
	progressRepo *repository.ProgressRepository,
	gate *GateService,
	roadmap *RoadmapService,
	locker *LearnerLocker,
	events *EventService,
) *AssessmentService {
	return &AssessmentService{
		assessmentRepo: assessmentRepo,
		contentRepo:    contentRepo,
		progressRepo:   progressRepo,
		gate:           gate,
		roadmap:        roadmap,
		locker:         locker,
		events:         events,
	}
}

// CreateAssessmentRequest is the authoring payload.
type CreateAssessmentRequest struct {
	ContentID           string           `json:"contentId" binding:"required"`
	Title               string           `json:"title" binding:"required"`
	Description         string           `json:"description"`
	MinimumPassingScore int              `json:"minimumPassingScore" binding:"min=0,max=100"`
	MaxAttempts         int              `json:"maxAttempts" binding:"min=0"`
	TimeLimit           int              `json:"timeLimit" binding:"min=0"` // minutes
	Mandatory           bool             `json:"mandatory"`
	Questions           []model.Question `json:"questions" binding:"required,min=1"`
}

// CreateAssessment validates every question at the boundary and
// optionally registers the assessment as the content's mandatory gate.
func (s *AssessmentService) CreateAssessment(req *CreateAssessmentRequest) (*model.Assessment, error) {
	if _, err := s.contentRepo.FindByID(req.ContentID); err == gorm.ErrRecordNotFound {
		return nil, &util.NotFoundError{Resource: "content", ID: req.ContentID}
	} else if err != nil {
		return nil, err
	}

	for i := range req.Questions {
		if err := req.Questions[i].Validate(); err != nil {
			return nil, err
		}
		req.Questions[i].Order = i
	}

	assessment := &model.Assessment{
		ContentID:           req.ContentID,
		Title:               req.Title,
		Description:         req.Description,
		MinimumPassingScore: req.MinimumPassingScore,
		MaxAttempts:         req.MaxAttempts,
		TimeLimit:           req.TimeLimit,
		Questions:           req.Questions,
	}
	if err := s.assessmentRepo.CreateAssessment(assessment); err != nil {
		return nil, err
	}

	if req.Mandatory {
		if err := s.contentRepo.SetMandatoryAssessment(req.ContentID, assessment.ID); err != nil {
			return nil, err
		}
	}
	return assessment, nil
}

func (s *AssessmentService) GetAssessment(id string) (*model.Assessment, error) {
	a, err := s.assessmentRepo.FindAssessmentByID(id)
	if err == gorm.ErrRecordNotFound {
		return nil, &util.NotFoundError{Resource: "assessment", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AssessmentService) ListAssessments(page, limit int) ([]model.Assessment, int64, error) {
	return s.assessmentRepo.ListAssessments(page, limit)
}

func (s *AssessmentService) ListAttempts(assessmentID string, learnerID uint) ([]model.AssessmentAttempt, error) {
	return s.assessmentRepo.ListAttempts(assessmentID, learnerID)
}

// StartAttempt opens a new attempt. An existing open attempt is
// returned as-is, so retried requests do not burn the attempt budget.
// The attempt number is assigned here and counts toward max_attempts
// whether or not the attempt is ever submitted.
func (s *AssessmentService) StartAttempt(ctx context.Context, learnerID uint, assessmentID string) (*model.AssessmentAttempt, error) {
	var attempt *model.AssessmentAttempt
	err := s.locker.WithLock(ctx, learnerID, func() error {
		assessment, err := s.GetAssessment(assessmentID)
		if err != nil {
			return err
		}
		if err := s.checkGate(learnerID, assessment); err != nil {
			return err
		}
		if err := s.checkNotPassed(learnerID, assessmentID); err != nil {
			return err
		}

		if open, err := s.assessmentRepo.FindOpenAttempt(assessmentID, learnerID); err == nil {
			attempt = open
			return nil
		} else if err != gorm.ErrRecordNotFound {
			return err
		}

		number, err := s.nextAttemptNumber(assessment, learnerID)
		if err != nil {
			return err
		}

		attempt = &model.AssessmentAttempt{
			AssessmentID:  assessmentID,
			LearnerID:     learnerID,
			AttemptNumber: number,
			TotalPoints:   assessment.TotalPoints(),
			Status:        model.AttemptInProgress,
			StartedAt:     time.Now(),
		}
		return s.assessmentRepo.CreateAttempt(attempt)
	})
	return attempt, err
}

// SaveAnswers stores partial answers on an open attempt without
// grading them, so a timed attempt that expires is graded with
// whatever the learner had saved. Saving past the deadline is
// rejected; the sweep finalizes the attempt from what is already
// there.
func (s *AssessmentService) SaveAnswers(ctx context.Context, learnerID uint, attemptID uint, answers []model.SubmittedAnswer) error {
	return s.locker.WithLock(ctx, learnerID, func() error {
		attempt, err := s.ownedOpenAttempt(learnerID, attemptID)
		if err != nil {
			return err
		}

		assessment, err := s.assessmentRepo.FindAssessmentByID(attempt.AssessmentID)
		if err != nil {
			return err
		}
		if assessment.TimeLimit > 0 && time.Since(attempt.StartedAt) > time.Duration(assessment.TimeLimit)*time.Minute {
			return &util.TimeLimitExceededError{
				AssessmentID: attempt.AssessmentID,
				LimitSeconds: assessment.TimeLimit * 60,
			}
		}

		stored := make([]model.AttemptAnswer, len(answers))
		for i, a := range answers {
			stored[i] = model.AttemptAnswer{QuestionID: a.QuestionID, Response: a.Response}
		}
		payload, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		attempt.Answers = payload
		return s.assessmentRepo.UpdateAttempt(attempt)
	})
}

// SubmitAttempt grades the answers and finalizes the attempt. Without
// a prior StartAttempt an attempt is opened implicitly. A submission
// past a timed assessment's deadline is still accepted and graded, but
// flagged time-expired. Clients retrying a submit pass the attempt
// number they already hold; a number that is already finalized returns
// the stored result instead of burning a fresh attempt.
func (s *AssessmentService) SubmitAttempt(ctx context.Context, learnerID uint, assessmentID string, answers []model.SubmittedAnswer, timeSpent int, attemptNumber int) (*model.AssessmentAttempt, error) {
	var attempt *model.AssessmentAttempt
	err := s.locker.WithLock(ctx, learnerID, func() error {
		assessment, err := s.GetAssessment(assessmentID)
		if err != nil {
			return err
		}

		if attemptNumber > 0 {
			prior, perr := s.assessmentRepo.FindAttemptByNumber(assessmentID, learnerID, attemptNumber)
			if perr == nil && prior.Finalized() {
				attempt = prior
				return nil
			}
			if perr == gorm.ErrRecordNotFound {
				return &util.ValidationError{Field: "attemptNumber", Reason: "no such attempt"}
			}
			if perr != nil {
				return perr
			}
			// The numbered attempt is still open; the usual path picks
			// it up below.
		}

		if err := s.checkGate(learnerID, assessment); err != nil {
			return err
		}
		if err := s.checkNotPassed(learnerID, assessmentID); err != nil {
			return err
		}

		attempt, err = s.assessmentRepo.FindOpenAttempt(assessmentID, learnerID)
		if err == gorm.ErrRecordNotFound {
			number, nerr := s.nextAttemptNumber(assessment, learnerID)
			if nerr != nil {
				return nerr
			}
			attempt = &model.AssessmentAttempt{
				AssessmentID:  assessmentID,
				LearnerID:     learnerID,
				AttemptNumber: number,
				Status:        model.AttemptInProgress,
				StartedAt:     time.Now(),
			}
			if cerr := s.assessmentRepo.CreateAttempt(attempt); cerr != nil {
				return cerr
			}
			attempt.TimeSpent = timeSpent
		} else if err != nil {
			return err
		} else {
			attempt.TimeSpent = int(time.Since(attempt.StartedAt).Seconds())
		}

		// A late submission is still accepted and graded from the
		// submitted answers; the flag records that the deadline passed.
		if assessment.TimeLimit > 0 && attempt.TimeSpent > assessment.TimeLimit*60 {
			attempt.TimeExpired = true
		}

		graded := s.grade(assessment, answers)
		return s.finalize(ctx, assessment, attempt, graded)
	})
	return attempt, err
}

// checkGate rejects attempts against content the learner cannot access.
func (s *AssessmentService) checkGate(learnerID uint, assessment *model.Assessment) error {
	if assessment.ContentID == "" {
		return nil
	}
	decision, err := s.gate.CanAccess(learnerID, assessment.ContentID)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &util.ValidationError{Field: "assessmentId", Reason: "content is blocked by unmet prerequisites"}
	}
	return nil
}

func (s *AssessmentService) checkNotPassed(learnerID uint, assessmentID string) error {
	passed, err := s.assessmentRepo.HasPassedAttempt(assessmentID, learnerID)
	if err != nil {
		return err
	}
	if passed != nil {
		return &util.AlreadyPassedError{AssessmentID: assessmentID, AttemptID: passed.ID}
	}
	return nil
}

// nextAttemptNumber enforces max_attempts and hands out the gap-free
// sequence number. Runs under the learner's lease, so the count cannot
// race with another attempt creation for the same learner.
func (s *AssessmentService) nextAttemptNumber(assessment *model.Assessment, learnerID uint) (int, error) {
	count, err := s.assessmentRepo.CountAttempts(assessment.ID, learnerID)
	if err != nil {
		return 0, err
	}
	if assessment.MaxAttempts > 0 && int(count) >= assessment.MaxAttempts {
		return 0, &util.AttemptLimitExceededError{
			AssessmentID: assessment.ID,
			MaxAttempts:  assessment.MaxAttempts,
		}
	}
	return int(count) + 1, nil
}

func (s *AssessmentService) ownedOpenAttempt(learnerID uint, attemptID uint) (*model.AssessmentAttempt, error) {
	attempt, err := s.assessmentRepo.FindAttemptByID(attemptID)
	if err == gorm.ErrRecordNotFound {
		return nil, &util.NotFoundError{Resource: "attempt", ID: ""}
	}
	if err != nil {
		return nil, err
	}
	if attempt.LearnerID != learnerID {
		return nil, &util.NotFoundError{Resource: "attempt", ID: ""}
	}
	if attempt.Finalized() {
		return nil, &util.ValidationError{Field: "attemptId", Reason: "attempt is already finalized"}
	}
	return attempt, nil
}

// grade scores the submitted answers against the assessment's
// questions. Essays are marked pending with zero points until a
// manual grade lands. Unanswered questions earn nothing.
func (s *AssessmentService) grade(assessment *model.Assessment, answers []model.SubmittedAnswer) []model.AttemptAnswer {
	byQuestion := make(map[string]string, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a.Response
	}

	graded := make([]model.AttemptAnswer, 0, len(assessment.Questions))
	for _, q := range assessment.Questions {
		response, answered := byQuestion[q.ID]
		entry := model.AttemptAnswer{QuestionID: q.ID, Response: response}

		switch {
		case q.Type == model.QuestionEssay:
			entry.PendingManual = answered && strings.TrimSpace(response) != ""
		case answered && matchesAnswer(&q, response):
			entry.Correct = true
			entry.PointsEarned = q.Points
		}
		graded = append(graded, entry)
	}
	return graded
}

// matchesAnswer compares a response against the acceptable answers,
// ignoring case and surrounding whitespace.
func matchesAnswer(q *model.Question, response string) bool {
	response = strings.TrimSpace(response)
	for _, acceptable := range q.AcceptableAnswers() {
		if strings.EqualFold(response, strings.TrimSpace(acceptable)) {
			return true
		}
	}
	return false
}

// finalize persists the graded attempt, updates the learner's progress
// record, publishes the attempt event, and feeds the roadmap
// adaptation. Called with the learner's lease held.
func (s *AssessmentService) finalize(ctx context.Context, assessment *model.Assessment, attempt *model.AssessmentAttempt, answers []model.AttemptAnswer) error {
	earned, pending := 0, false
	for _, a := range answers {
		earned += a.PointsEarned
		if a.PendingManual {
			pending = true
		}
	}

	payload, err := json.Marshal(answers)
	if err != nil {
		return err
	}

	total := assessment.TotalPoints()
	now := time.Now()
	attempt.Answers = payload
	attempt.PointsEarned = earned
	attempt.TotalPoints = total
	attempt.Score = percentScore(earned, total)
	attempt.Passed = attempt.Score >= assessment.MinimumPassingScore
	if attempt.SubmittedAt == nil {
		attempt.SubmittedAt = &now
	}
	if pending {
		attempt.Status = model.AttemptPendingGrade
	} else {
		attempt.Status = model.AttemptGraded
	}

	if err := s.assessmentRepo.UpdateAttempt(attempt); err != nil {
		return err
	}

	switch {
	case pending:
		monitoring.AttemptsSubmitted.WithLabelValues("pending").Inc()
	case attempt.Passed:
		monitoring.AttemptsSubmitted.WithLabelValues("passed").Inc()
	default:
		monitoring.AttemptsSubmitted.WithLabelValues("failed").Inc()
	}

	if err := s.recordProgress(assessment, attempt); err != nil {
		logger.Log.Warn("progress update after attempt failed",
			zap.Uint("attemptId", attempt.ID),
			zap.Error(err),
		)
	}

	s.events.AttemptRecorded(ctx, attempt.LearnerID, attempt.ID, attempt.Passed)

	trigger := TriggerAssessmentFailed
	if attempt.Passed {
		trigger = TriggerAssessmentPassed
		s.gate.CascadeUnlocks(ctx, attempt.LearnerID, assessment.ContentID)
	}
	if err := s.roadmap.AdaptLocked(ctx, attempt.LearnerID, trigger, assessment.ContentID); err != nil {
		logger.Log.Warn("roadmap adaptation after attempt failed",
			zap.Uint("attemptId", attempt.ID),
			zap.Error(err),
		)
	}

	logger.Log.Info("attempt finalized",
		zap.Uint("learnerId", attempt.LearnerID),
		zap.String("assessmentId", assessment.ID),
		zap.Int("attemptNumber", attempt.AttemptNumber),
		zap.Int("score", attempt.Score),
		zap.Bool("passed", attempt.Passed),
		zap.Bool("timeExpired", attempt.TimeExpired),
	)
	return nil
}

// percentScore rounds half away from zero, so 2 of 3 points is 67.
func percentScore(earned, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(earned) / float64(total) * 100))
}

// recordProgress bumps the attempt counters on the content's progress
// record. Attempt grading never flips content completion; that stays
// with explicit progress updates.
func (s *AssessmentService) recordProgress(assessment *model.Assessment, attempt *model.AssessmentAttempt) error {
	if assessment.ContentID == "" {
		return nil
	}

	record, err := s.progressRepo.Find(attempt.LearnerID, assessment.ContentID)
	if err == gorm.ErrRecordNotFound {
		record = &model.ProgressRecord{
			LearnerID: attempt.LearnerID,
			ContentID: assessment.ContentID,
			Status:    model.ProgressInProgress,
		}
	} else if err != nil {
		return err
	}

	record.AttemptsCount++
	if attempt.Score > record.BestScore {
		record.BestScore = attempt.Score
	}
	record.TimeSpent += attempt.TimeSpent
	record.LastAccessed = time.Now()
	return s.progressRepo.Upsert(record)
}

// FinalizeExpired sweeps in-progress attempts of timed assessments
// whose deadline passed, grading each from its saved answers. Runs on
// the background ticker.
func (s *AssessmentService) FinalizeExpired(ctx context.Context) {
	expired, err := s.assessmentRepo.ListExpiredOpenAttempts(time.Now())
	if err != nil {
		logger.Log.Warn("expired attempt sweep failed", zap.Error(err))
		return
	}

	for i := range expired {
		attempt := expired[i]
		err := s.locker.WithLock(ctx, attempt.LearnerID, func() error {
			// Re-read under the lease; the learner may have submitted.
			current, err := s.assessmentRepo.FindAttemptByID(attempt.ID)
			if err != nil || current.Finalized() {
				return err
			}

			assessment, err := s.assessmentRepo.FindAssessmentByID(current.AssessmentID)
			if err != nil {
				return err
			}

			current.TimeExpired = true
			current.TimeSpent = assessment.TimeLimit * 60
			return s.finalize(ctx, assessment, current, current.DecodedAnswers())
		})
		if err != nil {
			logger.Log.Warn("expired attempt finalization failed",
				zap.Uint("attemptId", attempt.ID),
				zap.Error(err),
			)
		}
	}
}

// EssayGrade is one manual grading decision.
type EssayGrade struct {
	QuestionID    string `json:"questionId" binding:"required"`
	PointsAwarded int    `json:"pointsAwarded" binding:"min=0"`
}

// GradeEssay applies manual grades to an attempt's pending essay
// answers and re-derives the score and pass state. When no pending
// answers remain the attempt moves to graded.
func (s *AssessmentService) GradeEssay(ctx context.Context, attemptID uint, grades []EssayGrade) (*model.AssessmentAttempt, error) {
	var attempt *model.AssessmentAttempt
	apply := func() error {
		var err error
		attempt, err = s.assessmentRepo.FindAttemptByID(attemptID)
		if err == gorm.ErrRecordNotFound {
			return &util.NotFoundError{Resource: "attempt", ID: ""}
		}
		if err != nil {
			return err
		}
		if attempt.Status != model.AttemptPendingGrade {
			return &util.ValidationError{Field: "attemptId", Reason: "attempt has no pending manual grades"}
		}

		assessment, err := s.assessmentRepo.FindAssessmentByID(attempt.AssessmentID)
		if err != nil {
			return err
		}
		questions := make(map[string]*model.Question, len(assessment.Questions))
		for i := range assessment.Questions {
			questions[assessment.Questions[i].ID] = &assessment.Questions[i]
		}

		answers := attempt.DecodedAnswers()
		for _, g := range grades {
			q, known := questions[g.QuestionID]
			if !known || q.Type != model.QuestionEssay {
				return &util.ValidationError{Field: "questionId", Reason: "not an essay question of this assessment"}
			}
			if g.PointsAwarded > q.Points {
				return &util.ValidationError{Field: "pointsAwarded", Reason: "exceeds the question's points"}
			}

			for i := range answers {
				if answers[i].QuestionID == g.QuestionID && answers[i].PendingManual {
					answers[i].PendingManual = false
					answers[i].PointsEarned = g.PointsAwarded
					answers[i].Correct = g.PointsAwarded >= q.Points
				}
			}
		}

		wasPassed := attempt.Passed
		if err := s.finalize(ctx, assessment, attempt, answers); err != nil {
			return err
		}
		if wasPassed && !attempt.Passed {
			s.gate.LockDependents(ctx, attempt.LearnerID, assessment.ContentID)
		}
		return nil
	}

	err := s.locker.WithLock(ctx, attemptLearnerID(s.assessmentRepo, attemptID), apply)
	return attempt, err
}

// attemptLearnerID resolves the lease owner before locking; a missing
// attempt locks learner 0 and fails inside the critical section.
func attemptLearnerID(repo *repository.AssessmentRepository, attemptID uint) uint {
	attempt, err := repo.FindAttemptByID(attemptID)
	if err != nil {
		return 0
	}
	return attempt.LearnerID
}

// TopicGap aggregates missed questions per topic for feedback.
type TopicGap struct {
	Topic  string `json:"topic"`
	Missed int    `json:"missed"`
	Total  int    `json:"total"`
}

// QuestionFeedback is the per-question slice of an attempt's feedback.
type QuestionFeedback struct {
	QuestionID    string   `json:"questionId"`
	Prompt        string   `json:"prompt"`
	Correct       bool     `json:"correct"`
	PendingManual bool     `json:"pendingManual,omitempty"`
	PointsEarned  int      `json:"pointsEarned"`
	Points        int      `json:"points"`
	Topics        []string `json:"topics,omitempty"`
}

// AttemptFeedback explains a finalized attempt: outcome, weak topics,
// and per-question results. Correct answers are never disclosed.
type AttemptFeedback struct {
	AttemptID  uint                `json:"attemptId"`
	Score      int                 `json:"score"`
	Passed     bool                `json:"passed"`
	Status     model.AttemptStatus `json:"status"`
	WeakTopics []TopicGap          `json:"weakTopics,omitempty"`
	Questions  []QuestionFeedback  `json:"questions"`
}

// Feedback builds the learner-facing explanation of an attempt.
func (s *AssessmentService) Feedback(learnerID uint, attemptID uint) (*AttemptFeedback, error) {
	attempt, err := s.assessmentRepo.FindAttemptByID(attemptID)
	if err == gorm.ErrRecordNotFound {
		return nil, &util.NotFoundError{Resource: "attempt", ID: ""}
	}
	if err != nil {
		return nil, err
	}
	if attempt.LearnerID != learnerID {
		return nil, &util.NotFoundError{Resource: "attempt", ID: ""}
	}
	if !attempt.Finalized() {
		return nil, &util.ValidationError{Field: "attemptId", Reason: "attempt is not finalized"}
	}

	assessment, err := s.assessmentRepo.FindAssessmentByID(attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	return buildFeedback(assessment, attempt), nil
}

func buildFeedback(assessment *model.Assessment, attempt *model.AssessmentAttempt) *AttemptFeedback {
	questions := make(map[string]*model.Question, len(assessment.Questions))
	for i := range assessment.Questions {
		questions[assessment.Questions[i].ID] = &assessment.Questions[i]
	}

	fb := &AttemptFeedback{
		AttemptID: attempt.ID,
		Score:     attempt.Score,
		Passed:    attempt.Passed,
		Status:    attempt.Status,
	}

	topicTotals := make(map[string]*TopicGap)
	var topicOrder []string
	for _, answer := range attempt.DecodedAnswers() {
		q, known := questions[answer.QuestionID]
		if !known {
			continue
		}
		topics := q.TopicList()
		fb.Questions = append(fb.Questions, QuestionFeedback{
			QuestionID:    q.ID,
			Prompt:        q.Prompt,
			Correct:       answer.Correct,
			PendingManual: answer.PendingManual,
			PointsEarned:  answer.PointsEarned,
			Points:        q.Points,
			Topics:        topics,
		})

		for _, topic := range topics {
			gap, seen := topicTotals[topic]
			if !seen {
				gap = &TopicGap{Topic: topic}
				topicTotals[topic] = gap
				topicOrder = append(topicOrder, topic)
			}
			gap.Total++
			if !answer.Correct && !answer.PendingManual {
				gap.Missed++
			}
		}
	}

	for _, topic := range topicOrder {
		if gap := topicTotals[topic]; gap.Missed > 0 {
			fb.WeakTopics = append(fb.WeakTopics, *gap)
		}
	}
	return fb
}

// missedTopics lists the topics of questions answered incorrectly on
// the attempt, used by roadmap generation as knowledge gaps.
func missedTopics(assessment *model.Assessment, attempt *model.AssessmentAttempt) []string {
	questions := make(map[string]*model.Question, len(assessment.Questions))
	for i := range assessment.Questions {
		questions[assessment.Questions[i].ID] = &assessment.Questions[i]
	}

	seen := make(map[string]bool)
	var topics []string
	for _, answer := range attempt.DecodedAnswers() {
		if answer.Correct || answer.PendingManual {
			continue
		}
		q, known := questions[answer.QuestionID]
		if !known {
			continue
		}
		for _, topic := range q.TopicList() {
			if !seen[topic] {
				seen[topic] = true
				topics = append(topics, topic)
			}
		}
	}
	return topics
}
