package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/repositories"
)

// HierarchyService maintains the derived drug classification table used
// for ATC-filtered retrieval.
type HierarchyService interface {
	// Rebuild recomputes ATC code sets for all drug-domain standard
	// concepts and swaps the stored table. Returns the number of concepts
	// with at least one resolved code.
	Rebuild(ctx context.Context) (int64, error)

	CountResolved(ctx context.Context) (int64, error)
}

type hierarchyService struct {
	atcRepo repositories.ATCRepository
	logger  *zap.Logger
}

// NewHierarchyService creates a new HierarchyService.
func NewHierarchyService(atcRepo repositories.ATCRepository, logger *zap.Logger) HierarchyService {
	return &hierarchyService{
		atcRepo: atcRepo,
		logger:  logger.Named("hierarchy"),
	}
}

var _ HierarchyService = (*hierarchyService)(nil)

func (s *hierarchyService) Rebuild(ctx context.Context) (int64, error) {
	s.logger.Info("Resolving ATC codes for drug concepts")

	codes, err := s.atcRepo.ResolveDrugCodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve drug ATC codes: %w", err)
	}

	if err := s.atcRepo.ReplaceAll(ctx, codes); err != nil {
		return 0, fmt.Errorf("failed to store drug ATC codes: %w", err)
	}

	s.logger.Info("Rebuilt drug classification table", zap.Int("concepts", len(codes)))
	return int64(len(codes)), nil
}

func (s *hierarchyService) CountResolved(ctx context.Context) (int64, error) {
	return s.atcRepo.CountResolved(ctx)
}
