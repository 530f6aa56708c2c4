package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/jsonutil"
	"github.com/medmap-labs/medmap-engine/pkg/llm"
	"github.com/medmap-labs/medmap-engine/pkg/models"
	"github.com/medmap-labs/medmap-engine/pkg/prompts"
	"github.com/medmap-labs/medmap-engine/pkg/retry"
)

// rerankerTemperature keeps arbitration near-deterministic.
const rerankerTemperature = 0.1

// Selection is the arbitration outcome for one term: the winning
// candidate and the model's 1-10 confidence in it.
type Selection struct {
	Candidate  models.CandidateConcept
	Confidence int
}

// CandidateSelector arbitrates between retrieved candidates.
type CandidateSelector interface {
	// Select picks the best candidate for the term. Returns nil when the
	// candidate list is empty. An unparseable reply degrades to the
	// top-ranked candidate with confidence 1, so the threshold gate
	// downstream rejects it rather than the run aborting. A provider
	// failure returns the same degraded selection together with the
	// error, letting callers count the failure while still gating on the
	// fallback.
	Select(ctx context.Context, term string, candidates []models.CandidateConcept, drug bool) (*Selection, error)
}

type llmReranker struct {
	chat   llm.LLMClient
	logger *zap.Logger
}

// NewLLMReranker creates a selector backed by a chat model.
func NewLLMReranker(chat llm.LLMClient, logger *zap.Logger) CandidateSelector {
	return &llmReranker{
		chat:   chat,
		logger: logger.Named("reranker"),
	}
}

var _ CandidateSelector = (*llmReranker)(nil)

// selectionReply is the JSON schema the arbitration prompt requests.
// Fields stay raw because models sometimes quote the numbers.
type selectionReply struct {
	MostSimilarItemID json.RawMessage `json:"most_similar_item_id"`
	ConfidenceScore   json.RawMessage `json:"confidence_score"`
}

func (s *llmReranker) Select(ctx context.Context, term string, candidates []models.CandidateConcept, drug bool) (*Selection, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	systemPrompt := prompts.ConceptSelection
	if drug {
		systemPrompt = prompts.DrugSelection
	}
	prompt := prompts.BuildSelection(term, candidates)

	resp, err := retry.DoWithResultIfRetryable(ctx, retry.ExternalCallConfig(), func() (*llm.GenerateResponseResult, error) {
		return s.chat.GenerateResponse(ctx, prompt, systemPrompt, rerankerTemperature, true)
	})
	if err != nil {
		s.logger.Warn("Arbitration call failed, falling back to top candidate",
			zap.String("term", term),
			zap.Error(err))
		return s.fallback(candidates), err
	}

	reply, err := llm.ParseJSONResponse[selectionReply](resp.Content)
	if err != nil {
		s.logger.Warn("Unparseable arbitration reply, falling back to top candidate",
			zap.String("term", term),
			zap.Error(err))
		return s.fallback(candidates), nil
	}

	picked, err := jsonutil.FlexibleIntValue(reply.MostSimilarItemID)
	if err != nil {
		s.logger.Warn("Unparseable arbitration reply, falling back to top candidate",
			zap.String("term", term),
			zap.Error(err))
		return s.fallback(candidates), nil
	}

	if picked < 0 || picked >= len(candidates) {
		s.logger.Warn("Arbitration picked an out-of-range candidate, falling back to top candidate",
			zap.String("term", term),
			zap.Int("picked", picked),
			zap.Int("candidates", len(candidates)))
		return s.fallback(candidates), nil
	}

	confidence, err := jsonutil.FlexibleIntValue(reply.ConfidenceScore)
	if err != nil {
		confidence = 1
	}

	return &Selection{
		Candidate:  candidates[picked],
		Confidence: clampConfidence(confidence),
	}, nil
}

// fallback is the degraded selection: top-ranked candidate at the lowest
// confidence, so the threshold gate decides its fate.
func (s *llmReranker) fallback(candidates []models.CandidateConcept) *Selection {
	return &Selection{
		Candidate:  candidates[0],
		Confidence: 1,
	}
}

func clampConfidence(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

// describeSelection renders a selection for logs.
func describeSelection(sel *Selection) string {
	if sel == nil {
		return "none"
	}
	return fmt.Sprintf("%d (%s) confidence=%d", sel.Candidate.ConceptID, sel.Candidate.ConceptName, sel.Confidence)
}
