package service

import "context"

// Verify queries both stores for counts; pure reporting, no mutation.
func (s *Service) Verify(ctx context.Context, request VerifyRequest) (*VerifyReport, error) {
	if err := s.ensureStores(false); err != nil {
		return nil, err
	}
	logf := ensureLogf(request.Logf)
	vectorStats, err := s.vectors.Stats(ctx)
	if err != nil {
		return nil, err
	}
	logf("vector index: %d vectors, dimension %d", vectorStats.TotalVectorCount, vectorStats.Dimension)
	graphStats, err := s.graph.Stats(ctx)
	if err != nil {
		return nil, err
	}
	logf("graph store: %d nodes, %d relationships", graphStats.Nodes, graphStats.Relationships)
	return &VerifyReport{
		VectorCount:   vectorStats.TotalVectorCount,
		Dimension:     vectorStats.Dimension,
		Nodes:         graphStats.Nodes,
		Relationships: graphStats.Relationships,
		TopTypes:      graphStats.TopTypes,
	}, nil
}
