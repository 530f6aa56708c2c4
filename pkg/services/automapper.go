package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/atc"
	"github.com/medmap-labs/medmap-engine/pkg/llm"
	"github.com/medmap-labs/medmap-engine/pkg/models"
	"github.com/medmap-labs/medmap-engine/pkg/repositories"
)

// AutoMapperConfig tunes the automatic mapping pipeline.
type AutoMapperConfig struct {
	// ConfidenceThreshold is the minimum arbitration confidence (1-10)
	// for a mapping to be persisted. The gate is inclusive: a score equal
	// to the threshold is accepted.
	ConfidenceThreshold int

	// DrugCandidates is the pool size for ATC-filtered retrieval. The
	// filter narrows the space enough that a larger pool stays relevant.
	DrugCandidates int

	// StandardCandidates is the pool size for domain-filtered retrieval.
	StandardCandidates int

	// DrugSpecific switches a run onto the drug pipeline: ATC codes are
	// extracted from each source term to narrow retrieval, and the
	// arbitration prompt matches on ingredient, dosage and formulation.
	// Terms without a recognizable ATC code fall back to the plain
	// domain-filtered search but keep the drug arbitration.
	DrugSpecific bool

	// OnProgress, when set, is called after each term of a bulk run.
	OnProgress func(current, total int)
}

// TermOutcome is the result of mapping one source term.
type TermOutcome struct {
	SourceID   int64  `json:"source_id"`
	Term       string `json:"term"`
	Mapped     bool   `json:"mapped"`
	ConceptID  int64  `json:"concept_id,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
	Method     string `json:"method,omitempty"`
	Skipped    string `json:"skipped,omitempty"`
}

// Summary reports one bulk mapping run.
type Summary struct {
	MappedCount         int      `json:"mapped_count"`
	TotalConcepts       int      `json:"total_concepts"`
	FailedTerms         int      `json:"failed_terms"`
	MappingMethod       string   `json:"mapping_method"`
	TargetDomains       []string `json:"target_domains"`
	ConfidenceThreshold int      `json:"confidence_threshold"`
}

// AutoMapper maps source terms onto standard concepts by combining
// filtered vector retrieval with LLM arbitration.
type AutoMapper interface {
	// MapTerm runs the pipeline for a single source concept.
	MapTerm(ctx context.Context, source *models.SourceConcept, targetDomains []string) (*TermOutcome, error)

	// MapVocabulary maps every unmapped term of one source vocabulary,
	// highest frequency first. Individual term failures are logged and
	// skipped; the run aborts early only when the provider circuit
	// breaker opens.
	MapVocabulary(ctx context.Context, sourceVocabularyID int64, targetDomains []string) (*Summary, error)
}

type autoMapper struct {
	retriever   CandidateRetriever
	selector    CandidateSelector
	sourceRepo  repositories.SourceConceptRepository
	mappingRepo repositories.MappingRepository
	breaker     *llm.CircuitBreaker
	cfg         AutoMapperConfig
	logger      *zap.Logger
}

// NewAutoMapper creates a new AutoMapper.
func NewAutoMapper(
	retriever CandidateRetriever,
	selector CandidateSelector,
	sourceRepo repositories.SourceConceptRepository,
	mappingRepo repositories.MappingRepository,
	cfg AutoMapperConfig,
	logger *zap.Logger,
) AutoMapper {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 8
	}
	if cfg.DrugCandidates <= 0 {
		cfg.DrugCandidates = 30
	}
	if cfg.StandardCandidates <= 0 {
		cfg.StandardCandidates = 15
	}

	return &autoMapper{
		retriever:   retriever,
		selector:    selector,
		sourceRepo:  sourceRepo,
		mappingRepo: mappingRepo,
		breaker:     llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig()),
		cfg:         cfg,
		logger:      logger.Named("automapper"),
	}
}

var _ AutoMapper = (*autoMapper)(nil)

func (s *autoMapper) MapTerm(ctx context.Context, source *models.SourceConcept, targetDomains []string) (*TermOutcome, error) {
	outcome, providerErr, err := s.mapTerm(ctx, source, targetDomains)
	if err != nil {
		return nil, err
	}
	return outcome, providerErr
}

// mapTerm runs retrieval, arbitration and the threshold gate for one
// term. providerErr reports an LLM failure that was absorbed by the
// fallback selection; err is a hard failure.
func (s *autoMapper) mapTerm(ctx context.Context, source *models.SourceConcept, targetDomains []string) (outcome *TermOutcome, providerErr, err error) {
	outcome = &TermOutcome{
		SourceID: source.SourceID,
		Term:     source.SourceConceptName,
	}

	method := models.MethodAutoStandard
	if s.cfg.DrugSpecific {
		method = models.MethodAutoDrug
	}

	var candidates []models.CandidateConcept
	atcPath := false

	if s.cfg.DrugSpecific {
		if atcCodes := s.atcCodes(source); len(atcCodes) > 0 {
			candidates, err = s.retriever.Retrieve(ctx, source.SourceConceptName, RetrievalOptions{
				ATCCodes: atcCodes,
				Limit:    s.cfg.DrugCandidates,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("retrieve drug candidates: %w", err)
			}
			// When no concept shares the ATC code, fall through to the
			// plain domain-filtered search.
			atcPath = len(candidates) > 0
		}
	}

	if !atcPath {
		candidates, err = s.retriever.Retrieve(ctx, source.SourceConceptName, RetrievalOptions{
			Domains: targetDomains,
			Limit:   s.cfg.StandardCandidates,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("retrieve candidates: %w", err)
		}
	}

	selection, selErr := s.selector.Select(ctx, source.SourceConceptName, candidates, s.cfg.DrugSpecific)
	if selection == nil {
		if selErr != nil {
			return nil, nil, fmt.Errorf("arbitrate candidates: %w", selErr)
		}
		outcome.Skipped = "no candidates"
		return outcome, nil, nil
	}
	providerErr = selErr

	outcome.ConceptID = selection.Candidate.ConceptID
	outcome.Confidence = selection.Confidence
	outcome.Method = method

	if selection.Confidence < s.cfg.ConfidenceThreshold {
		outcome.Skipped = "below confidence threshold"
		s.logger.Info("Mapping rejected by confidence gate",
			zap.String("term", source.SourceConceptName),
			zap.String("selection", describeSelection(selection)),
			zap.Int("threshold", s.cfg.ConfidenceThreshold))
		return outcome, providerErr, nil
	}

	confidence := selection.Confidence
	audit := &models.MappingAuditRecord{
		ConfidenceScore: &confidence,
		MappingMethod:   method,
		TargetDomains:   targetDomains,
	}
	if err := s.mappingRepo.Map(ctx, source.SourceID, []int64{selection.Candidate.ConceptID}, audit); err != nil {
		return nil, providerErr, fmt.Errorf("persist mapping: %w", err)
	}

	outcome.Mapped = true
	s.logger.Info("Mapped source term",
		zap.String("term", source.SourceConceptName),
		zap.Int64("concept_id", selection.Candidate.ConceptID),
		zap.Int("confidence", selection.Confidence),
		zap.String("method", method))

	return outcome, providerErr, nil
}

func (s *autoMapper) MapVocabulary(ctx context.Context, sourceVocabularyID int64, targetDomains []string) (*Summary, error) {
	terms, err := s.sourceRepo.GetUnmapped(ctx, sourceVocabularyID)
	if err != nil {
		return nil, fmt.Errorf("load unmapped terms: %w", err)
	}

	summary := &Summary{
		TotalConcepts:       len(terms),
		MappingMethod:       models.MethodAutoStandard,
		TargetDomains:       targetDomains,
		ConfidenceThreshold: s.cfg.ConfidenceThreshold,
	}
	if s.cfg.DrugSpecific {
		summary.MappingMethod = models.MethodAutoDrug
	}

	s.logger.Info("Starting bulk mapping run",
		zap.Int64("source_vocabulary_id", sourceVocabularyID),
		zap.Int("terms", len(terms)),
		zap.Strings("target_domains", targetDomains),
		zap.Bool("drug_specific", s.cfg.DrugSpecific))

	for i, source := range terms {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if allowed, breakerErr := s.breaker.Allow(); !allowed {
			return summary, fmt.Errorf("bulk run aborted: %w", breakerErr)
		}

		outcome, providerErr, err := s.mapTerm(ctx, source, targetDomains)
		if err != nil {
			summary.FailedTerms++
			s.breaker.RecordFailure()
			s.logger.Warn("Skipping term after failure",
				zap.String("term", source.SourceConceptName),
				zap.Error(err))
			if s.cfg.OnProgress != nil {
				s.cfg.OnProgress(i+1, len(terms))
			}
			continue
		}

		if providerErr != nil {
			summary.FailedTerms++
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}

		if outcome.Mapped {
			summary.MappedCount++
		}

		if s.cfg.OnProgress != nil {
			s.cfg.OnProgress(i+1, len(terms))
		}
	}

	s.logger.Info("Bulk mapping run finished",
		zap.Int("mapped", summary.MappedCount),
		zap.Int("total", summary.TotalConcepts),
		zap.Int("failed", summary.FailedTerms))

	return summary, nil
}

// atcCodes prefers an explicitly attached code over extraction from the
// raw source value.
func (s *autoMapper) atcCodes(source *models.SourceConcept) []string {
	if source.ATCCode != "" {
		return []string{atc.Normalize(source.ATCCode)}
	}
	return atc.Extract(source.SourceValue)
}
