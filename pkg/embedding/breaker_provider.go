package embedding

import (
	"context"

	"second-brain-be/pkg/breaker"
)

// BreakerProvider guards an inner provider with a circuit breaker so a
// misbehaving backend is cut off instead of being hammered on every query.
type BreakerProvider struct {
	inner Provider
	cb    *breaker.Breaker
}

func NewBreakerProvider(inner Provider, cb *breaker.Breaker) *BreakerProvider {
	return &BreakerProvider{inner: inner, cb: cb}
}

func (p *BreakerProvider) Name() string { return p.inner.Name() }

func (p *BreakerProvider) IsAvailable() bool {
	return p.inner.IsAvailable() && p.cb.State() != breaker.StateOpen
}

func (p *BreakerProvider) Generate(ctx context.Context, text string, opts ...Option) (*Result, error) {
	if err := p.cb.Allow(); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "circuit breaker open", Err: err}
	}

	res, err := p.inner.Generate(ctx, text, opts...)
	p.record(err)
	return res, err
}

func (p *BreakerProvider) GenerateBatch(ctx context.Context, texts []string, opts ...Option) ([]*Result, error) {
	if err := p.cb.Allow(); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "circuit breaker open", Err: err}
	}

	res, err := p.inner.GenerateBatch(ctx, texts, opts...)
	p.record(err)
	return res, err
}

func (p *BreakerProvider) record(err error) {
	// Validation failures say nothing about backend health.
	if err == ErrEmptyText {
		return
	}
	if err != nil {
		p.cb.RecordFailure()
		return
	}
	p.cb.RecordSuccess()
}
