package service

import (
	"context"
	"edupath_backend/internal/model"
	"edupath_backend/internal/repository"
	"edupath_backend/internal/util"
	"edupath_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FailingPrerequisite names one unmet requirement in an access
// decision, in the content's declared prerequisite order.
type FailingPrerequisite struct {
	ContentID string `json:"contentId"`
	Title     string `json:"title"`
	Reason    string `json:"reason"` // not_completed or assessment_not_passed
}

const (
	ReasonNotCompleted        = "not_completed"
	ReasonAssessmentNotPassed = "assessment_not_passed"
)

// AccessDecision is the gate's answer for one (learner, content) pair.
// "blocked" lives only here; it is never written to a progress record.
type AccessDecision struct {
	Allowed              bool                  `json:"allowed"`
	ContentID            string                `json:"contentId"`
	BlockedBy            string                `json:"blockedBy,omitempty"` // first failing prerequisite
	FailingPrerequisites []FailingPrerequisite `json:"failingPrerequisites,omitempty"`
}

// GateService evaluates prerequisite and mastery rules. Reads are
// lock-free: a decision computed from a snapshot that a concurrent
// completion immediately invalidates is acceptable, the next read
// heals it.
type GateService struct {
	learnerRepo    *repository.LearnerRepository
	contentRepo    *repository.ContentRepository
	progressRepo   *repository.ProgressRepository
	assessmentRepo *repository.AssessmentRepository
	roadmapRepo    *repository.RoadmapRepository
	events         *EventService
}

func NewGateService(
	learnerRepo *repository.LearnerRepository,
	contentRepo *repository.ContentRepository,
	progressRepo *repository.ProgressRepository,
	assessmentRepo *repository.AssessmentRepository,
	roadmapRepo *repository.RoadmapRepository,
	events *EventService,
) *GateService {
	return &GateService{
		learnerRepo:    learnerRepo,
		contentRepo:    contentRepo,
		progressRepo:   progressRepo,
		assessmentRepo: assessmentRepo,
		roadmapRepo:    roadmapRepo,
		events:         events,
	}
}

// CanAccess decides whether the learner may open contentID. Every
// prerequisite must be completed, and where a prerequisite carries a
// mandatory assessment the learner must also hold a passing attempt.
// All failing prerequisites are reported, in declared order.
func (s *GateService) CanAccess(learnerID uint, contentID string) (*AccessDecision, error) {
	if _, err := s.learnerRepo.FindByID(learnerID); err == gorm.ErrRecordNotFound {
		return nil, &util.NotFoundError{Resource: "learner", ID: ""}
	} else if err != nil {
		return nil, err
	}

	node, err := s.contentRepo.FindByID(contentID)
	if err == gorm.ErrRecordNotFound {
		return nil, &util.NotFoundError{Resource: "content", ID: contentID}
	}
	if err != nil {
		return nil, err
	}

	decision := &AccessDecision{ContentID: contentID, Allowed: true}
	if len(node.Prerequisites) == 0 {
		return decision, nil
	}

	for _, edge := range node.Prerequisites {
		prereq, err := s.contentRepo.FindByID(edge.PrerequisiteID)
		if err == gorm.ErrRecordNotFound {
			// Dangling edge after a prerequisite was removed; treat as met.
			continue
		}
		if err != nil {
			return nil, err
		}

		failing, err := s.checkPrerequisite(learnerID, prereq)
		if err != nil {
			return nil, err
		}
		if failing != nil {
			decision.FailingPrerequisites = append(decision.FailingPrerequisites, *failing)
		}
	}

	if len(decision.FailingPrerequisites) > 0 {
		decision.Allowed = false
		decision.BlockedBy = decision.FailingPrerequisites[0].ContentID
	}
	return decision, nil
}

// checkPrerequisite returns nil when the prerequisite is met.
func (s *GateService) checkPrerequisite(learnerID uint, prereq *model.ContentNode) (*FailingPrerequisite, error) {
	completed, err := s.progressRepo.IsCompleted(learnerID, prereq.ID)
	if err != nil {
		return nil, err
	}
	if !completed {
		return &FailingPrerequisite{
			ContentID: prereq.ID,
			Title:     prereq.Title,
			Reason:    ReasonNotCompleted,
		}, nil
	}

	if prereq.MandatoryAssessmentID != nil && *prereq.MandatoryAssessmentID != "" {
		passed, err := s.assessmentRepo.HasPassedAttempt(*prereq.MandatoryAssessmentID, learnerID)
		if err != nil {
			return nil, err
		}
		if passed == nil {
			return &FailingPrerequisite{
				ContentID: prereq.ID,
				Title:     prereq.Title,
				Reason:    ReasonAssessmentNotPassed,
			}, nil
		}
	}

	return nil, nil
}

// ProgressUpdate is the request body for recording progress.
type ProgressUpdate struct {
	CompletionPercentage int `json:"completionPercentage" binding:"min=0,max=100"`
	TimeSpentDelta       int `json:"timeSpentDelta" binding:"min=0"` // seconds
}

// UpdateProgress records the learner's progress on a content node.
// Reaching 100% marks the record completed and triggers the one-hop
// unlock cascade. Returns whether the update completed the content.
func (s *GateService) UpdateProgress(ctx context.Context, learnerID uint, contentID string, upd *ProgressUpdate) (*model.ProgressRecord, bool, error) {
	if upd.CompletionPercentage < 0 || upd.CompletionPercentage > 100 {
		return nil, false, &util.ValidationError{Field: "completionPercentage", Reason: "must be between 0 and 100"}
	}

	if _, err := s.contentRepo.FindByID(contentID); err == gorm.ErrRecordNotFound {
		return nil, false, &util.NotFoundError{Resource: "content", ID: contentID}
	} else if err != nil {
		return nil, false, err
	}

	record, err := s.progressRepo.Find(learnerID, contentID)
	if err == gorm.ErrRecordNotFound {
		record = &model.ProgressRecord{
			LearnerID: learnerID,
			ContentID: contentID,
			Status:    model.ProgressNotStarted,
		}
	} else if err != nil {
		return nil, false, err
	}

	wasCompleted := record.Status == model.ProgressCompleted

	// Completion percentage is monotonic; a lower value only adds time.
	if upd.CompletionPercentage > record.CompletionPercentage {
		record.CompletionPercentage = upd.CompletionPercentage
	}
	record.TimeSpent += upd.TimeSpentDelta
	record.LastAccessed = time.Now()

	switch {
	case record.CompletionPercentage >= 100:
		record.Status = model.ProgressCompleted
	case record.CompletionPercentage > 0 || record.TimeSpent > 0:
		if record.Status != model.ProgressCompleted {
			record.Status = model.ProgressInProgress
		}
	}

	if err := s.progressRepo.Upsert(record); err != nil {
		return nil, false, err
	}

	justCompleted := !wasCompleted && record.Status == model.ProgressCompleted
	if justCompleted {
		s.CascadeUnlocks(ctx, learnerID, contentID)
	}
	return record, justCompleted, nil
}

// CascadeUnlocks re-evaluates the direct dependents of contentID after
// the learner's state changed. One hop only: an unlock here does not
// recursively unlock further descendants, their own gates decide when
// they are read.
func (s *GateService) CascadeUnlocks(ctx context.Context, learnerID uint, contentID string) {
	dependents, err := s.contentRepo.ListDependents(contentID)
	if err != nil {
		logger.Log.Warn("unlock cascade failed",
			zap.Uint("learnerId", learnerID),
			zap.String("contentId", contentID),
			zap.Error(err),
		)
		return
	}

	for _, dep := range dependents {
		decision, err := s.CanAccess(learnerID, dep.ID)
		if err != nil {
			logger.Log.Warn("unlock cascade skipped dependent",
				zap.String("dependentId", dep.ID),
				zap.Error(err),
			)
			continue
		}
		if !decision.Allowed {
			continue
		}

		transitioned, err := s.roadmapRepo.SetItemUnlocked(learnerID, dep.ID, true)
		if err != nil {
			logger.Log.Warn("unlock flag update failed",
				zap.String("dependentId", dep.ID),
				zap.Error(err),
			)
			continue
		}
		if transitioned {
			s.events.ContentUnlocked(ctx, learnerID, dep.ID)
			logger.Log.Info("content unlocked",
				zap.Uint("learnerId", learnerID),
				zap.String("contentId", dep.ID),
			)
		}
	}
}

// LockDependents flips the unlock flag off for direct dependents whose
// gate no longer passes, used after a mastery regression (a previously
// passing assessment overridden to failing by manual grading).
func (s *GateService) LockDependents(ctx context.Context, learnerID uint, contentID string) {
	dependents, err := s.contentRepo.ListDependents(contentID)
	if err != nil {
		return
	}
	for _, dep := range dependents {
		decision, err := s.CanAccess(learnerID, dep.ID)
		if err != nil || decision.Allowed {
			continue
		}
		if _, err := s.roadmapRepo.SetItemUnlocked(learnerID, dep.ID, false); err != nil {
			logger.Log.Warn("lock flag update failed",
				zap.String("dependentId", dep.ID),
				zap.Error(err),
			)
		}
	}
}

// ListProgress returns the learner's progress records, most recently
// touched first.
func (s *GateService) ListProgress(learnerID uint) ([]model.ProgressRecord, error) {
	return s.progressRepo.ListByLearner(learnerID)
}
