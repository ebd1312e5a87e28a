package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Seeder registers a fixed tenant; it backs the "database" seeder of the reset command.
type Seeder struct {
	svc   *Service
	input Input
}

// NewSeeder returns a Seeder registering input.
func NewSeeder(svc *Service, input Input) *Seeder {
	if svc == nil {
		panic("registration service is required")
	}
	return &Seeder{svc: svc, input: input}
}

func (s *Seeder) Seed(ctx context.Context) error {
	res, err := s.svc.Register(ctx, s.input)
	if err != nil {
		return fmt.Errorf("seed tenant %q: %w", s.input.Subdomain, err)
	}
	s.svc.logger.Info("seeded tenant", zap.String("tenant_id", res.TenantID), zap.String("domain", res.Domain))
	return nil
}
