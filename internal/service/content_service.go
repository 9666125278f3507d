package service

import (
	"edupath_backend/internal/model"
	"edupath_backend/internal/repository"
	"edupath_backend/internal/util"

	"gorm.io/gorm"
)

// ContentService is the authoring surface for the content graph.
// Prerequisite cycles are rejected here, at write time, so the gate
// and the fallback generator can treat the graph as a DAG.
type ContentService struct {
	contentRepo *repository.ContentRepository
	learnerRepo *repository.LearnerRepository
}

func NewContentService(contentRepo *repository.ContentRepository, learnerRepo *repository.LearnerRepository) *ContentService {
	return &ContentService{contentRepo: contentRepo, learnerRepo: learnerRepo}
}

type CreateContentRequest struct {
	Kind            model.ContentKind `json:"kind" binding:"required,oneof=course lesson assessment"`
	Title           string            `json:"title" binding:"required,max=255"`
	Description     string            `json:"description"`
	CourseID        string            `json:"courseId"`
	Order           int               `json:"order" binding:"min=0"`
	DurationMinutes int               `json:"durationMinutes" binding:"min=0"`
	PrerequisiteIDs []string          `json:"prerequisiteIds"`
}

// CreateContent stores a node after checking that every prerequisite
// exists and that the new edges keep the graph acyclic.
func (s *ContentService) CreateContent(req *CreateContentRequest) (*model.ContentNode, error) {
	if req.Kind != model.KindCourse && req.CourseID == "" {
		return nil, &util.ValidationError{Field: "courseId", Reason: "required for non-course content"}
	}
	if req.Kind == model.KindCourse && len(req.PrerequisiteIDs) > 0 {
		return nil, &util.ValidationError{Field: "prerequisiteIds", Reason: "courses cannot declare prerequisites"}
	}

	seen := make(map[string]bool, len(req.PrerequisiteIDs))
	for _, pid := range req.PrerequisiteIDs {
		if seen[pid] {
			return nil, &util.ValidationError{Field: "prerequisiteIds", Reason: "duplicate prerequisite"}
		}
		seen[pid] = true
		if _, err := s.contentRepo.FindByID(pid); err == gorm.ErrRecordNotFound {
			return nil, &util.NotFoundError{Resource: "content", ID: pid}
		} else if err != nil {
			return nil, err
		}
	}

	node := &model.ContentNode{
		Kind:            req.Kind,
		Title:           req.Title,
		Description:     req.Description,
		CourseID:        req.CourseID,
		Order:           req.Order,
		DurationMinutes: req.DurationMinutes,
	}
	node.ID = model.GenerateUUID()

	// A brand-new node cannot close a cycle through existing edges
	// alone, but self-references and repeated authoring calls can.
	if err := s.checkAcyclic(node.ID, req.PrerequisiteIDs); err != nil {
		return nil, err
	}

	if err := s.contentRepo.Create(node, req.PrerequisiteIDs); err != nil {
		return nil, err
	}
	return s.contentRepo.FindByID(node.ID)
}

// UpdatePrerequisites replaces a node's prerequisite list. The new
// edge set is checked for cycles before anything is written.
func (s *ContentService) UpdatePrerequisites(contentID string, prerequisiteIDs []string) (*model.ContentNode, error) {
	node, err := s.GetContent(contentID)
	if err != nil {
		return nil, err
	}
	if node.Kind == model.KindCourse && len(prerequisiteIDs) > 0 {
		return nil, &util.ValidationError{Field: "prerequisiteIds", Reason: "courses cannot declare prerequisites"}
	}

	seen := make(map[string]bool, len(prerequisiteIDs))
	for _, pid := range prerequisiteIDs {
		if seen[pid] {
			return nil, &util.ValidationError{Field: "prerequisiteIds", Reason: "duplicate prerequisite"}
		}
		seen[pid] = true
		if _, err := s.contentRepo.FindByID(pid); err == gorm.ErrRecordNotFound {
			return nil, &util.NotFoundError{Resource: "content", ID: pid}
		} else if err != nil {
			return nil, err
		}
	}

	if err := s.checkAcyclic(contentID, prerequisiteIDs); err != nil {
		return nil, err
	}

	if err := s.contentRepo.ReplacePrerequisites(contentID, prerequisiteIDs); err != nil {
		return nil, err
	}
	return s.contentRepo.FindByID(contentID)
}

// checkAcyclic walks the stored edge set, with nodeID's edges replaced
// by the proposed list, depth-first from nodeID. Runs in memory; the
// graph is authoring-scale.
func (s *ContentService) checkAcyclic(nodeID string, prerequisiteIDs []string) error {
	for _, pid := range prerequisiteIDs {
		if pid == nodeID {
			return util.ErrCycleDetected
		}
	}

	edges, err := s.contentRepo.AllEdges()
	if err != nil {
		return err
	}

	adjacent := make(map[string][]string, len(edges))
	for _, e := range edges {
		if e.ContentID == nodeID {
			continue // replaced by the proposed list
		}
		adjacent[e.ContentID] = append(adjacent[e.ContentID], e.PrerequisiteID)
	}
	adjacent[nodeID] = prerequisiteIDs

	visited := make(map[string]bool)
	var walk func(id string) bool
	walk = func(id string) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, next := range adjacent[id] {
			if next == nodeID || walk(next) {
				return true
			}
		}
		return false
	}

	for _, pid := range prerequisiteIDs {
		if walk(pid) {
			return util.ErrCycleDetected
		}
	}
	return nil
}

func (s *ContentService) GetContent(id string) (*model.ContentNode, error) {
	node, err := s.contentRepo.FindByID(id)
	if err == gorm.ErrRecordNotFound {
		return nil, &util.NotFoundError{Resource: "content", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *ContentService) ListCourses() ([]model.ContentNode, error) {
	return s.contentRepo.ListCourses()
}

func (s *ContentService) ListCourseContent(courseID string) ([]model.ContentNode, error) {
	if _, err := s.GetContent(courseID); err != nil {
		return nil, err
	}
	return s.contentRepo.ListByCourse(courseID)
}

func (s *ContentService) ListContent(page, limit int) ([]model.ContentNode, int64, error) {
	return s.contentRepo.List(page, limit)
}

// Enroll registers the learner in a course. Enrolling twice is a
// no-op.
func (s *ContentService) Enroll(learnerID uint, courseID string) error {
	course, err := s.GetContent(courseID)
	if err != nil {
		return err
	}
	if course.Kind != model.KindCourse {
		return &util.ValidationError{Field: "courseId", Reason: "content is not a course"}
	}
	return s.learnerRepo.Enroll(learnerID, courseID)
}

func (s *ContentService) EnrolledCourses(learnerID uint) ([]model.ContentNode, error) {
	ids, err := s.learnerRepo.EnrolledCourseIDs(learnerID)
	if err != nil {
		return nil, err
	}
	courses := make([]model.ContentNode, 0, len(ids))
	for _, id := range ids {
		course, err := s.contentRepo.FindByID(id)
		if err != nil {
			continue
		}
		courses = append(courses, *course)
	}
	return courses, nil
}
