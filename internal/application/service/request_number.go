package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

// RequestNumberGenerator produces human-readable request numbers: REQ-<year>-<6-digit-seq>
type RequestNumberGenerator interface {
	// Next never fails: a sequence error falls back to a timestamp-based number
	Next(ctx context.Context) string
}

type requestNumberGeneratorImpl struct {
	sequenceRepo port.SequenceRepository
	logger       Logger
	now          Clock
	fallbackSeq  atomic.Uint64
}

// NewRequestNumberGenerator creates a new RequestNumberGenerator. A nil clock uses time.Now.
func NewRequestNumberGenerator(sequenceRepo port.SequenceRepository, logger Logger, now Clock) RequestNumberGenerator {
	if now == nil {
		now = time.Now
	}
	return &requestNumberGeneratorImpl{
		sequenceRepo: sequenceRepo,
		logger:       logger,
		now:          now,
	}
}

// Next returns the next number for the current year
func (g *requestNumberGeneratorImpl) Next(ctx context.Context) string {
	now := g.now()
	year := now.Year()

	seq, err := g.sequenceRepo.NextValue(ctx, year)
	if err == nil && seq > 0 {
		return fmt.Sprintf("%s-%d-%06d", entity.RequestNumberPrefix, year, seq)
	}

	if err == nil {
		err = fmt.Errorf("sequence returned %d", seq)
	}
	fallback := fmt.Sprintf("%s-%d-T%d%04d", entity.RequestNumberPrefix, year, now.UnixMilli(), g.fallbackSeq.Add(1)%10000)
	g.logger.Warn("Request sequence unavailable, using timestamp number", "error", err, "request_number", fallback)
	return fallback
}
