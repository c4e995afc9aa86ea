package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"masthead/pkg/models"
)

// Mock is a Gateway backed by static fixture data with zero latency.
// Enabled via MASTHEAD_USE_MOCK for working on the dashboard without a
// live backend. Mutations update fixture state in memory so the reconcile
// path behaves like the real thing.
type Mock struct {
	mu       sync.Mutex
	articles []models.Article
}

// NewMock creates a mock gateway seeded with the standard fixture set.
func NewMock() *Mock {
	return &Mock{articles: fixtureArticles()}
}

func fixtureArticles() []models.Article {
	now := time.Now()
	return []models.Article{
		{
			ID:                  "mock-1",
			Title:               "OpenAI Releases GPT-5 with Native Multimodal Reasoning",
			URL:                 "https://techcrunch.com/openai-gpt5",
			Source:              "TechCrunch",
			RelevanceScore:      models.IntPtr(9),
			NewsworthinessScore: models.IntPtr(9),
			Summary:             "OpenAI announces GPT-5 with breakthrough multimodal capabilities, outperforming previous models in code, math, and reasoning benchmarks.",
			GeneratedPost:       "OpenAI just dropped GPT-5 with native multimodal reasoning. Early benchmarks show 40% improvement in code generation and mathematical reasoning.",
			Hashtags:            []string{"#AI", "#OpenAI"},
			Status:              models.StatusPending,
			CreatedAt:           now,
		},
		{
			ID:                  "mock-2",
			Title:               "Google DeepMind Achieves AGI Milestone with Gemini Ultra 2",
			URL:                 "https://arstechnica.com/deepmind-agi",
			Source:              "Ars Technica",
			RelevanceScore:      models.IntPtr(8),
			NewsworthinessScore: models.IntPtr(8),
			Summary:             "DeepMind researchers claim Gemini Ultra 2 passes key AGI benchmarks, sparking debate in AI research community.",
			GeneratedPost:       "Google DeepMind claims Gemini Ultra 2 has reached AGI-level performance on key benchmarks. The AI community is divided.",
			Hashtags:            []string{"#AGI", "#Google"},
			Status:              models.StatusPending,
			CreatedAt:           now.Add(-1 * time.Hour),
		},
		{
			ID:                  "mock-3",
			Title:               "Anthropic Open Sources Constitutional AI Training",
			URL:                 "https://theverge.com/anthropic-constitutional-ai",
			Source:              "The Verge",
			RelevanceScore:      models.IntPtr(7),
			NewsworthinessScore: models.IntPtr(8),
			Summary:             "Anthropic releases the full training methodology and code for Constitutional AI, enabling other labs to implement safer AI alignment.",
			GeneratedPost:       "Anthropic just open-sourced Constitutional AI. Other labs can now implement the safety techniques behind it. Huge for alignment research.",
			Hashtags:            []string{"#Anthropic", "#AISafety"},
			Status:              models.StatusPending,
			CreatedAt:           now.Add(-2 * time.Hour),
		},
		{
			ID:                  "mock-4",
			Title:               "Meta Releases Llama 4 with 1T Parameters",
			URL:                 "https://meta.ai/llama4",
			Source:              "Wired",
			RelevanceScore:      models.IntPtr(8),
			NewsworthinessScore: models.IntPtr(7),
			Summary:             "Meta's latest open-source LLM Llama 4 features 1 trillion parameters with mixture-of-experts architecture, available for commercial use.",
			GeneratedPost:       "Meta drops Llama 4: 1 trillion parameters, fully open-source with MoE architecture. The open-source AI race heats up.",
			Hashtags:            []string{"#Llama4", "#OpenSource"},
			Status:              models.StatusPending,
			CreatedAt:           now.Add(-3 * time.Hour),
		},
		{
			ID:                  "mock-5",
			Title:               "NVIDIA Announces Blackwell Ultra GPUs for AI Training",
			URL:                 "https://nvidia.com/blackwell-ultra",
			Source:              "TechCrunch",
			RelevanceScore:      models.IntPtr(7),
			NewsworthinessScore: models.IntPtr(6),
			Summary:             "NVIDIA unveils Blackwell Ultra, promising 3x performance per watt for AI training workloads compared to H100.",
			GeneratedPost:       "NVIDIA's Blackwell Ultra GPU is here: 3x performance per watt over H100 for AI training.",
			Hashtags:            []string{"#NVIDIA", "#AIHardware"},
			Status:              models.StatusApproved,
			CreatedAt:           now.Add(-24 * time.Hour),
		},
		{
			ID:                  "mock-6",
			Title:               "Hugging Face Launches Free GPU Cloud for Researchers",
			URL:                 "https://huggingface.co/free-gpu",
			Source:              "Hacker News",
			RelevanceScore:      models.IntPtr(6),
			NewsworthinessScore: models.IntPtr(7),
			Summary:             "Hugging Face partners with cloud providers to offer free GPU access for academic AI researchers, with 100 H100 hours per month.",
			GeneratedPost:       "Hugging Face now offers free H100 GPU access for researchers: 100 hours per month. No more GPU poverty in academia.",
			Hashtags:            []string{"#HuggingFace", "#AIResearch"},
			Status:              models.StatusRejected,
			CreatedAt:           now.Add(-48 * time.Hour),
		},
	}
}

// ListArticles returns fixture articles filtered by status.
func (m *Mock) ListArticles(_ context.Context, status models.Status, limit int) ([]models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Article, 0, len(m.articles))
	for _, a := range m.articles {
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Mutate updates fixture state in place.
func (m *Mock) Mutate(_ context.Context, articleID string, action models.Action, editedPost string) (models.ActionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.articles {
		if m.articles[i].ID != articleID {
			continue
		}
		m.articles[i].Status = action.ResultingStatus()
		if editedPost != "" {
			m.articles[i].GeneratedPost = editedPost
		}
		return models.ActionResponse{Status: "updated", ArticleID: articleID, Action: action}, nil
	}
	return models.ActionResponse{}, &APIError{StatusCode: 404, Body: fmt.Sprintf("article %s not found", articleID)}
}

// Health always reports healthy.
func (m *Mock) Health(_ context.Context) (models.HealthResponse, error) {
	return models.HealthResponse{Status: "healthy", Service: "masthead-backend (mock)"}, nil
}

// IngestNew pretends the upstream pipeline ran and found nothing new.
func (m *Mock) IngestNew(_ context.Context) (models.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.IngestResult{Fetched: len(m.articles), New: 0, Duplicates: len(m.articles), Errors: 0}, nil
}
