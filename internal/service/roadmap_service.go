package service

import (
	"context"
	"edupath_backend/internal/config"
	"edupath_backend/internal/model"
	"edupath_backend/internal/repository"
	"edupath_backend/internal/util"
	"edupath_backend/pkg/logger"
	"edupath_backend/pkg/monitoring"
	"edupath_backend/pkg/resilience"
	"edupath_backend/pkg/tracing"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdaptTrigger names the learner event a roadmap adaptation reacts to.
type AdaptTrigger string

const (
	TriggerAssessmentFailed AdaptTrigger = "assessment_failed"
	TriggerAssessmentPassed AdaptTrigger = "assessment_passed"
	TriggerContentCompleted AdaptTrigger = "content_completed"
)

// RoadmapService owns the single personalized path per learner.
// Generation asks the advisor through the resilience wrapper and falls
// back to the deterministic generator; Generate and Adapt never fail
// because the advisor is down.
type RoadmapService struct {
	roadmapRepo  *repository.RoadmapRepository
	contentRepo  *repository.ContentRepository
	learnerRepo  *repository.LearnerRepository
	progressRepo *repository.ProgressRepository
	attemptRepo  *repository.AssessmentRepository
	gate         *GateService
	advisor      Advisor
	locker       *LearnerLocker
	events       *EventService

	breaker  *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
	timeout  time.Duration
}

func NewRoadmapService(
	roadmapRepo *repository.RoadmapRepository,
	contentRepo *repository.ContentRepository,
	learnerRepo *repository.LearnerRepository,
	progressRepo *repository.ProgressRepository,
	attemptRepo *repository.AssessmentRepository,
	gate *GateService,
	advisor Advisor,
	locker *LearnerLocker,
	events *EventService,
	cfg config.AdvisorConfig,
) *RoadmapService {
	return &RoadmapService{
		roadmapRepo:  roadmapRepo,
		contentRepo:  contentRepo,
		learnerRepo:  learnerRepo,
		progressRepo: progressRepo,
		attemptRepo:  attemptRepo,
		gate:         gate,
		advisor:      advisor,
		locker:       locker,
		events:       events,
		breaker:      resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout),
		retryCfg: resilience.RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   5 * time.Second,
		},
		timeout: cfg.Timeout,
	}
}

// Get returns the learner's roadmap with its items in path order.
func (s *RoadmapService) Get(learnerID uint) (*model.Roadmap, error) {
	rm, err := s.roadmapRepo.FindByLearner(learnerID)
	if err == gorm.ErrRecordNotFound {
		return nil, &util.NotFoundError{Resource: "roadmap", ID: "learner"}
	}
	if err != nil {
		return nil, err
	}
	return rm, nil
}

// Generate builds (or rebuilds) the learner's roadmap from their
// enrolled content. It consults the advisor; when the advisor fails,
// is rejected by the breaker, or returns an unusable path, the
// deterministic fallback takes over so generation always succeeds.
func (s *RoadmapService) Generate(ctx context.Context, learnerID uint) (*model.Roadmap, error) {
	var rm *model.Roadmap
	err := s.locker.WithLock(ctx, learnerID, func() error {
		var err error
		rm, err = s.generateLocked(ctx, learnerID)
		return err
	})
	return rm, err
}

func (s *RoadmapService) generateLocked(ctx context.Context, learnerID uint) (*model.Roadmap, error) {
	ctx, span := tracing.Tracer.Start(ctx, "roadmap.generate")
	defer span.End()
	span.SetAttributes(attribute.Int("learner.id", int(learnerID)))

	learner, err := s.learnerRepo.FindByID(learnerID)
	if err != nil {
		return nil, &util.NotFoundError{Resource: "learner", ID: ""}
	}

	nodes, err := s.enrolledContent(learnerID)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, &util.ValidationError{Field: "enrollments", Reason: "learner is not enrolled in any course"}
	}

	if err := s.ensureGenerating(learnerID); err != nil {
		return nil, err
	}

	items, source, reasoning := s.buildPath(ctx, learner, nodes)
	span.SetAttributes(attribute.String("roadmap.source", string(source)))

	if err := s.applyUnlockFlags(learnerID, items); err != nil {
		return nil, err
	}

	rm, err := s.persist(learnerID, items, source, reasoning)
	if err != nil {
		return nil, err
	}
	s.events.RoadmapUpdated(ctx, learnerID, rm.ID)
	return rm, nil
}

// ensureGenerating creates the learner's roadmap row in the generating
// state when none exists yet, so the state machine starts there. On
// regeneration the previous active roadmap keeps serving reads until
// the atomic replace lands.
func (s *RoadmapService) ensureGenerating(learnerID uint) error {
	_, err := s.roadmapRepo.FindByLearner(learnerID)
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	rm := &model.Roadmap{
		LearnerID:   learnerID,
		Status:      model.RoadmapGenerating,
		GeneratedAt: time.Now(),
	}
	if createErr := s.roadmapRepo.Create(rm); createErr != nil && !errors.Is(createErr, gorm.ErrDuplicatedKey) {
		return createErr
	}
	return nil
}

// enrolledContent collects the lesson nodes of every enrolled course,
// enrollment order first, then declared order within each course.
func (s *RoadmapService) enrolledContent(learnerID uint) ([]model.ContentNode, error) {
	courseIDs, err := s.learnerRepo.EnrolledCourseIDs(learnerID)
	if err != nil {
		return nil, err
	}

	var nodes []model.ContentNode
	for _, courseID := range courseIDs {
		courseNodes, err := s.contentRepo.ListByCourse(courseID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, courseNodes...)
	}
	return nodes, nil
}

// buildPath asks the advisor and validates its answer; any failure
// along the way degrades to the fallback generator.
func (s *RoadmapService) buildPath(ctx context.Context, learner *model.Learner, nodes []model.ContentNode) ([]model.LearningPathItem, model.RoadmapSource, string) {
	req := s.advisorRequest(learner, nodes)

	var resp *AdvisorResponse
	err := s.breaker.Execute(func() error {
		return resilience.RetryWithBackoff(ctx, s.retryCfg, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			var callErr error
			resp, callErr = s.advisor.Recommend(callCtx, req)
			return callErr
		}, func(err error) bool {
			var advErr *util.AdvisorError
			return errors.As(err, &advErr) && advErr.Retryable
		})
	})
	monitoring.CircuitState.Set(float64(s.breaker.State()))

	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			monitoring.AdvisorRequests.WithLabelValues("rejected").Inc()
		} else {
			monitoring.AdvisorRequests.WithLabelValues("failure").Inc()
		}
		logger.Log.Warn("advisor unavailable, using fallback generator",
			zap.Uint("learnerId", learner.ID),
			zap.Error(err),
		)
		monitoring.RoadmapFallbacks.Inc()
		return s.fallbackPath(nodes), model.SourceFallback, "Deterministic path over enrolled content; the advisor was unavailable."
	}
	monitoring.AdvisorRequests.WithLabelValues("success").Inc()

	items, ok := s.pathFromAdvisor(resp, nodes)
	if !ok {
		logger.Log.Warn("advisor path rejected by validation, using fallback generator",
			zap.Uint("learnerId", learner.ID),
		)
		monitoring.RoadmapFallbacks.Inc()
		return s.fallbackPath(nodes), model.SourceFallback, "Deterministic path over enrolled content; the advisor's path failed validation."
	}
	return items, model.SourceAdvisor, resp.Reasoning
}

func (s *RoadmapService) advisorRequest(learner *model.Learner, nodes []model.ContentNode) *AdvisorRequest {
	req := &AdvisorRequest{
		Profile: LearnerProfile{
			LearnerID: learner.ID,
			Name:      learner.Name,
			Language:  learner.Language,
		},
		KnowledgeGaps: s.knowledgeGaps(learner.ID, nodes),
	}
	for _, n := range nodes {
		req.EnrolledContent = append(req.EnrolledContent, AdvisorContent{
			ContentID:       n.ID,
			Kind:            string(n.Kind),
			Title:           n.Title,
			DurationMinutes: n.DurationMinutes,
			Prerequisites:   n.PrerequisiteIDs(),
		})
	}
	return req
}

// knowledgeGaps collects the topics of questions the learner answered
// incorrectly on their best attempt at each mandatory assessment.
func (s *RoadmapService) knowledgeGaps(learnerID uint, nodes []model.ContentNode) []string {
	seen := make(map[string]bool)
	var gaps []string
	for _, n := range nodes {
		if n.MandatoryAssessmentID == nil || *n.MandatoryAssessmentID == "" {
			continue
		}
		best, err := s.attemptRepo.BestAttempt(*n.MandatoryAssessmentID, learnerID)
		if err != nil || best.Passed {
			continue
		}
		assessment, err := s.attemptRepo.FindAssessmentByID(best.AssessmentID)
		if err != nil {
			continue
		}
		for _, topic := range missedTopics(assessment, best) {
			if !seen[topic] {
				seen[topic] = true
				gaps = append(gaps, topic)
			}
		}
	}
	return gaps
}

// pathFromAdvisor validates the advisor's path against the enrolled
// content: only known ids, no duplicates, prerequisites before
// dependents. Returns ok=false when the path is unusable.
func (s *RoadmapService) pathFromAdvisor(resp *AdvisorResponse, nodes []model.ContentNode) ([]model.LearningPathItem, bool) {
	if len(resp.LearningPath) == 0 {
		return nil, false
	}

	byID := make(map[string]*model.ContentNode, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	placed := make(map[string]int, len(resp.LearningPath))
	var items []model.LearningPathItem
	for i, pathItem := range resp.LearningPath {
		node, known := byID[pathItem.ContentID]
		if !known {
			return nil, false
		}
		if _, dup := placed[pathItem.ContentID]; dup {
			return nil, false
		}
		placed[pathItem.ContentID] = i

		for _, prereqID := range node.PrerequisiteIDs() {
			if _, inScope := byID[prereqID]; !inScope {
				continue // prerequisite outside enrolled content, gate still enforces it
			}
			pos, present := placed[prereqID]
			if !present || pos >= i {
				return nil, false
			}
		}

		estimated := pathItem.EstimatedTime
		if estimated <= 0 {
			estimated = node.DurationMinutes
		}
		items = append(items, newPathItem(node, estimated, pathItem.Note))
	}
	return items, true
}

// fallbackPath orders the enrolled content deterministically: a stable
// topological sort that keeps the declared order wherever the
// prerequisite edges allow it. It cannot fail; authoring rejects
// cycles, and any malformed residue is appended in declared order.
// Fallback items carry no prerequisite annotations (the gate still
// enforces the real edges) and a note naming the generator.
func (s *RoadmapService) fallbackPath(nodes []model.ContentNode) []model.LearningPathItem {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	placed := make(map[string]bool, len(nodes))
	var items []model.LearningPathItem

	for len(items) < len(nodes) {
		progressed := false
		for i := range nodes {
			n := &nodes[i]
			if placed[n.ID] {
				continue
			}
			ready := true
			for _, prereqID := range n.PrerequisiteIDs() {
				if _, inScope := index[prereqID]; inScope && !placed[prereqID] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			placed[n.ID] = true
			items = append(items, fallbackPathItem(n))
			progressed = true
		}
		if !progressed {
			// Unsatisfiable residue; append what is left in declared order.
			for i := range nodes {
				if !placed[nodes[i].ID] {
					placed[nodes[i].ID] = true
					items = append(items, fallbackPathItem(&nodes[i]))
				}
			}
		}
	}
	return items
}

func fallbackPathItem(node *model.ContentNode) model.LearningPathItem {
	return model.LearningPathItem{
		ContentID:        node.ID,
		PrerequisiteIDs:  json.RawMessage("[]"),
		EstimatedTime:    node.DurationMinutes,
		CompletionStatus: model.ItemPending,
		Note:             "Scheduled in declared order by the fallback generator.",
	}
}

func newPathItem(node *model.ContentNode, estimatedTime int, note string) model.LearningPathItem {
	prereqs, _ := json.Marshal(node.PrerequisiteIDs())
	return model.LearningPathItem{
		ContentID:        node.ID,
		PrerequisiteIDs:  prereqs,
		EstimatedTime:    estimatedTime,
		CompletionStatus: model.ItemPending,
		Note:             note,
	}
}

// applyUnlockFlags evaluates the gate for every item and carries over
// completion state from the learner's progress records.
func (s *RoadmapService) applyUnlockFlags(learnerID uint, items []model.LearningPathItem) error {
	for i := range items {
		decision, err := s.gate.CanAccess(learnerID, items[i].ContentID)
		if err != nil {
			return err
		}
		items[i].IsUnlocked = decision.Allowed

		completed, err := s.progressRepo.IsCompleted(learnerID, items[i].ContentID)
		if err != nil {
			return err
		}
		if completed {
			items[i].CompletionStatus = model.ItemCompleted
		}
	}
	return nil
}

// persist writes the roadmap with optimistic versioning: on a version
// conflict it reloads and retries exactly once before surfacing the
// conflict.
func (s *RoadmapService) persist(learnerID uint, items []model.LearningPathItem, source model.RoadmapSource, reasoning string) (*model.Roadmap, error) {
	existing, err := s.roadmapRepo.FindByLearner(learnerID)
	if err == gorm.ErrRecordNotFound {
		rm := &model.Roadmap{
			LearnerID:   learnerID,
			Status:      model.RoadmapActive,
			Source:      source,
			Reasoning:   reasoning,
			GeneratedAt: time.Now(),
			Version:     1,
			Items:       items,
		}
		for i := range rm.Items {
			rm.Items[i].OrderIndex = i
		}
		if createErr := s.roadmapRepo.Create(rm); createErr != nil {
			if errors.Is(createErr, gorm.ErrDuplicatedKey) {
				// Lost the creation race; fall through to replace.
				return s.replaceWithRetry(learnerID, items, source, reasoning)
			}
			return nil, createErr
		}
		return rm, nil
	}
	if err != nil {
		return nil, err
	}

	existing.Status = model.RoadmapActive
	existing.Source = source
	existing.Reasoning = reasoning
	existing.GeneratedAt = time.Now()
	if err := s.replaceOnce(existing, items); err != nil {
		var conflict *util.ConcurrencyConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
		return s.replaceWithRetry(learnerID, items, source, reasoning)
	}
	return s.roadmapRepo.FindByLearner(learnerID)
}

func (s *RoadmapService) replaceOnce(rm *model.Roadmap, items []model.LearningPathItem) error {
	return s.roadmapRepo.Replace(rm, items, rm.Version)
}

func (s *RoadmapService) replaceWithRetry(learnerID uint, items []model.LearningPathItem, source model.RoadmapSource, reasoning string) (*model.Roadmap, error) {
	fresh, err := s.roadmapRepo.FindByLearner(learnerID)
	if err != nil {
		return nil, err
	}
	fresh.Status = model.RoadmapActive
	fresh.Source = source
	fresh.Reasoning = reasoning
	fresh.GeneratedAt = time.Now()
	if err := s.replaceOnce(fresh, items); err != nil {
		return nil, err
	}
	return s.roadmapRepo.FindByLearner(learnerID)
}

// Adapt rewrites the learner's path in response to a progression
// event. Callers that already hold the learner's lock use AdaptLocked.
func (s *RoadmapService) Adapt(ctx context.Context, learnerID uint, trigger AdaptTrigger, contentID string) error {
	return s.locker.WithLock(ctx, learnerID, func() error {
		return s.AdaptLocked(ctx, learnerID, trigger, contentID)
	})
}

// AdaptLocked applies one adaptation. A learner without a roadmap is
// not an error, there is nothing to adapt.
func (s *RoadmapService) AdaptLocked(ctx context.Context, learnerID uint, trigger AdaptTrigger, contentID string) error {
	rm, err := s.roadmapRepo.FindByLearner(learnerID)
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if rm.Status == model.RoadmapPaused || rm.Status == model.RoadmapCompleted {
		return nil
	}

	items := rm.Items
	switch trigger {
	case TriggerAssessmentFailed:
		decision, err := s.gate.CanAccess(learnerID, contentID)
		if err != nil {
			return err
		}
		items = s.insertRemedials(items, contentID, decision.FailingPrerequisites)
	case TriggerAssessmentPassed, TriggerContentCompleted:
		items = clearRemedials(items, contentID)
		for i := range items {
			if items[i].ContentID == contentID {
				items[i].CompletionStatus = model.ItemCompleted
			}
		}
	default:
		return &util.ValidationError{Field: "trigger", Reason: "unknown adaptation trigger"}
	}

	if err := s.applyUnlockFlags(learnerID, items); err != nil {
		return err
	}
	lockBehindRemedials(items)

	if allCompleted(items) {
		rm.Status = model.RoadmapCompleted
	}

	if err := s.replaceOnce(rm, items); err != nil {
		var conflict *util.ConcurrencyConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		fresh, err := s.roadmapRepo.FindByLearner(learnerID)
		if err != nil {
			return err
		}
		fresh.Status = rm.Status
		if err := s.replaceOnce(fresh, items); err != nil {
			return err
		}
	}

	s.events.RoadmapUpdated(ctx, learnerID, rm.ID)
	return nil
}

// insertRemedials places review items for the failed content's unmet
// prerequisites directly before it, idempotently. The failed item then
// stays locked until the remedial run is completed. A failure with no
// unmet prerequisites inserts nothing; retrying is the remedy.
func (s *RoadmapService) insertRemedials(items []model.LearningPathItem, contentID string, failing []FailingPrerequisite) []model.LearningPathItem {
	pos := -1
	for i := range items {
		if items[i].ContentID == contentID && !items[i].Remedial {
			pos = i
			break
		}
	}
	if pos < 0 || len(failing) == 0 {
		return items
	}

	present := make(map[string]bool)
	for i := pos - 1; i >= 0 && items[i].Remedial; i-- {
		present[items[i].ContentID] = true
	}

	var run []model.LearningPathItem
	for _, prereq := range failing {
		if present[prereq.ContentID] {
			continue
		}
		estimated := 0
		if node, err := s.contentRepo.FindByID(prereq.ContentID); err == nil {
			estimated = node.DurationMinutes
		}
		run = append(run, model.LearningPathItem{
			ContentID:        prereq.ContentID,
			PrerequisiteIDs:  json.RawMessage("[]"),
			EstimatedTime:    estimated,
			CompletionStatus: model.ItemPending,
			Note:             "Review " + prereq.Title + " before retrying the assessment.",
			Remedial:         true,
		})
	}
	if len(run) == 0 {
		return items
	}

	out := make([]model.LearningPathItem, 0, len(items)+len(run))
	out = append(out, items[:pos]...)
	out = append(out, run...)
	out = append(out, items[pos:]...)
	return out
}

// clearRemedials drops the remedial run directly before the item whose
// assessment was passed or whose content was completed.
func clearRemedials(items []model.LearningPathItem, contentID string) []model.LearningPathItem {
	pos := -1
	for i := range items {
		if items[i].ContentID == contentID && !items[i].Remedial {
			pos = i
			break
		}
	}
	if pos < 0 {
		return items
	}
	start := pos
	for start > 0 && items[start-1].Remedial {
		start--
	}
	if start == pos {
		return items
	}
	out := make([]model.LearningPathItem, 0, len(items)-(pos-start))
	out = append(out, items[:start]...)
	out = append(out, items[pos:]...)
	return out
}

// lockBehindRemedials re-locks any item whose preceding remedial run
// still has uncompleted members, overriding the gate's verdict.
func lockBehindRemedials(items []model.LearningPathItem) {
	for i := range items {
		if items[i].Remedial {
			continue
		}
		for j := i - 1; j >= 0 && items[j].Remedial; j-- {
			if items[j].CompletionStatus != model.ItemCompleted {
				items[i].IsUnlocked = false
				break
			}
		}
	}
}

func allCompleted(items []model.LearningPathItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if it.Remedial {
			continue
		}
		if it.CompletionStatus != model.ItemCompleted {
			return false
		}
	}
	return true
}

// Pause, Resume and Complete are manual status transitions, each a
// version-guarded update retried once on conflict.
func (s *RoadmapService) Pause(learnerID uint) error {
	return s.transition(learnerID, model.RoadmapPaused, model.RoadmapActive)
}

func (s *RoadmapService) Resume(learnerID uint) error {
	return s.transition(learnerID, model.RoadmapActive, model.RoadmapPaused)
}

func (s *RoadmapService) Complete(learnerID uint) error {
	return s.transition(learnerID, model.RoadmapCompleted, model.RoadmapActive)
}

func (s *RoadmapService) transition(learnerID uint, to model.RoadmapStatus, from model.RoadmapStatus) error {
	for attempt := 0; attempt < 2; attempt++ {
		rm, err := s.roadmapRepo.FindByLearner(learnerID)
		if err == gorm.ErrRecordNotFound {
			return &util.NotFoundError{Resource: "roadmap", ID: "learner"}
		}
		if err != nil {
			return err
		}
		if rm.Status != from {
			return &util.ValidationError{Field: "status", Reason: "roadmap is not " + string(from)}
		}

		err = s.roadmapRepo.UpdateStatus(rm.ID, to, rm.Version)
		var conflict *util.ConcurrencyConflictError
		if errors.As(err, &conflict) && attempt == 0 {
			continue
		}
		return err
	}
	return &util.ConcurrencyConflictError{Resource: "roadmap"}
}
