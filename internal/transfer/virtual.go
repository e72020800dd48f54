// Package transfer provides the concrete engine.TransferProvider backends:
// a virtual ledger-only provider for development and tests, and an HTTP
// provider speaking to a real transfer rail.
package transfer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// VirtualProvider simulates a transfer rail in memory. Transfers always
// succeed and repeated idempotency keys return the original transaction,
// matching the contract real rails honor.
type VirtualProvider struct {
	mu        sync.Mutex
	byKey     map[string]string // idempotency key -> external transaction ID
	transfers []engine.TransferRequest
}

// NewVirtualProvider creates an empty virtual provider.
func NewVirtualProvider() *VirtualProvider {
	return &VirtualProvider{byKey: make(map[string]string)}
}

// PerformTransfer implements engine.TransferProvider.
func (p *VirtualProvider) PerformTransfer(ctx context.Context, req engine.TransferRequest) (*engine.TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byKey[req.IdempotencyKey]; ok {
		return &engine.TransferResult{ExternalTransactionID: id}, nil
	}

	id := uuid.NewString()
	p.byKey[req.IdempotencyKey] = id
	p.transfers = append(p.transfers, req)

	return &engine.TransferResult{ExternalTransactionID: id}, nil
}

// Transfers returns a copy of every distinct transfer performed, in order.
func (p *VirtualProvider) Transfers() []engine.TransferRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]engine.TransferRequest, len(p.transfers))
	copy(out, p.transfers)
	return out
}

var _ engine.TransferProvider = (*VirtualProvider)(nil)
