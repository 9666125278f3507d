package service

import (
	"context"
	"edupath_backend/internal/config"
	"edupath_backend/internal/util"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// LearnerProfile is the learner-facing half of an advisor request.
type LearnerProfile struct {
	LearnerID uint   `json:"learnerId"`
	Name      string `json:"name"`
	Language  string `json:"language"`
}

type AdvisorContent struct {
	ContentID       string   `json:"contentId"`
	Kind            string   `json:"kind"`
	Title           string   `json:"title"`
	DurationMinutes int      `json:"durationMinutes"`
	Prerequisites   []string `json:"prerequisites,omitempty"`
}

type AdvisorRequest struct {
	Profile         LearnerProfile   `json:"profile"`
	KnowledgeGaps   []string         `json:"knowledgeGaps"`
	EnrolledContent []AdvisorContent `json:"enrolledContent"`
}

type AdvisorPathItem struct {
	ContentID     string `json:"contentId"`
	EstimatedTime int    `json:"estimatedTime"`
	Note          string `json:"note"`
}

type AdvisorResponse struct {
	LearningPath []AdvisorPathItem `json:"learningPath"`
	Reasoning    string            `json:"reasoning"`
}

// Advisor is the opaque recommendation boundary. The production
// implementation talks to an OpenAI-compatible endpoint; tests stub it.
type Advisor interface {
	Recommend(ctx context.Context, req *AdvisorRequest) (*AdvisorResponse, error)
}

// OpenAIAdvisor is constructed once at startup and injected where
// needed; there is no package-level client.
type OpenAIAdvisor struct {
	api   *openai.Client
	model string
}

func NewOpenAIAdvisor(cfg config.AdvisorConfig) *OpenAIAdvisor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIAdvisor{
		api:   openai.NewClientWithConfig(clientCfg),
		model: cfg.Model,
	}
}

const advisorSystemPrompt = `You are a learning-path advisor for an online education platform.
Given a learner profile, their knowledge gaps, and the content they are enrolled in,
produce a personalized ordering of that content.
Respond with JSON only, in the shape:
{"learningPath":[{"contentId":"...","estimatedTime":30,"note":"..."}],"reasoning":"..."}
Use only contentId values from the enrolled content. Order items so that every
prerequisite appears before the content that requires it.`

func (a *OpenAIAdvisor) Recommend(ctx context.Context, req *AdvisorRequest) (*AdvisorResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &util.AdvisorError{Retryable: false, Err: err}
	}

	resp, err := a.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: advisorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, classifyAdvisorError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &util.AdvisorError{Retryable: false, Err: errors.New("advisor returned no choices")}
	}

	var out AdvisorResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		// A malformed response is not worth retrying; the fallback
		// generator takes over.
		return nil, &util.AdvisorError{Retryable: false, Err: fmt.Errorf("malformed advisor response: %w", err)}
	}

	return &out, nil
}

// classifyAdvisorError splits transport/server failures (retryable)
// from request failures (not).
func classifyAdvisorError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &util.AdvisorError{Retryable: true, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		retryable := apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
		return &util.AdvisorError{Retryable: retryable, Err: err}
	}

	// Network-level errors are treated as transient.
	return &util.AdvisorError{Retryable: true, Err: err}
}
