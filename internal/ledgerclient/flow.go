package ledgerclient

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/shared"
)

// FlowState is a step of the two-phase adjustment flow.
type FlowState string

const (
	FlowIdle       FlowState = "idle"
	FlowProposed   FlowState = "proposed"
	FlowCommitting FlowState = "committing"
	FlowCommitted  FlowState = "committed"
	FlowFailed     FlowState = "failed"
)

// AdjustmentCommitter is satisfied by Client.
type AdjustmentCommitter interface {
	CreateAdjustment(ctx context.Context, reviewed billing.Proposal, idempotencyKey string) (billing.AdjustmentResult, error)
	GetInvoice(ctx context.Context, invoiceID int64) (billing.Invoice, error)
}

// AdjustmentFlow drives review-then-confirm for one invoice. Propose only
// validates locally; Confirm is the single mutating step.
type AdjustmentFlow struct {
	mu        sync.Mutex
	committer AdjustmentCommitter
	latch     *Latch
	state     FlowState
	invoice   billing.Invoice
	proposal  *billing.Proposal
	key       string
	result    *billing.AdjustmentResult
	err       error
}

// NewAdjustmentFlow starts an idle flow over invoice.
func NewAdjustmentFlow(committer AdjustmentCommitter, latch *Latch, invoice billing.Invoice) *AdjustmentFlow {
	if latch == nil {
		latch = NewLatch()
	}
	return &AdjustmentFlow{committer: committer, latch: latch, state: FlowIdle, invoice: invoice}
}

// Propose validates req against the held invoice and, when it passes, holds
// the proposal for confirmation. Validation problems leave the flow idle.
func (f *AdjustmentFlow) Propose(req billing.AdjustmentRequest) (billing.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FlowCommitting {
		return billing.Proposal{}, f.busy("propose adjustment")
	}
	if f.state == FlowCommitted {
		return billing.Proposal{}, &shared.StateError{Op: "propose adjustment", State: string(f.state), Reason: "adjustment already committed; start a new one"}
	}
	if req.InvoiceID == 0 {
		req.InvoiceID = f.invoice.ID
	}
	inv := f.invoice
	proposal, err := billing.ProposeAdjustment(&inv, req)
	if err != nil {
		f.state, f.proposal, f.err = FlowIdle, nil, err
		return billing.Proposal{}, err
	}
	f.state, f.proposal, f.err = FlowProposed, &proposal, nil
	f.key = uuid.NewString()
	return proposal, nil
}

// Confirm commits the held proposal. On failure the held invoice is left
// as it was and the proposal may be confirmed again explicitly; the same
// idempotency key is reused so a commit that did land is not applied twice.
// When the service reports the key as already used, the earlier attempt
// landed: the flow is committed and the invoice is re-read. The returned
// result then carries the invoice only.
func (f *AdjustmentFlow) Confirm(ctx context.Context) (billing.AdjustmentResult, error) {
	f.mu.Lock()
	if f.state == FlowCommitting {
		f.mu.Unlock()
		return billing.AdjustmentResult{}, f.busy("confirm adjustment")
	}
	if f.proposal == nil || (f.state != FlowProposed && f.state != FlowFailed) {
		state := f.state
		f.mu.Unlock()
		return billing.AdjustmentResult{}, &shared.StateError{Op: "confirm adjustment", State: string(state), Reason: "nothing to confirm; review an adjustment first"}
	}
	release, err := f.latch.Acquire(InvoiceKey(f.invoice.ID))
	if err != nil {
		f.mu.Unlock()
		return billing.AdjustmentResult{}, err
	}
	defer release()
	reviewed, key := *f.proposal, f.key
	f.state = FlowCommitting
	f.mu.Unlock()

	result, err := f.committer.CreateAdjustment(ctx, reviewed, key)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		var inv billing.Invoice
		if inv, err = f.committer.GetInvoice(ctx, reviewed.Request.InvoiceID); err == nil {
			result = billing.AdjustmentResult{Invoice: inv}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state, f.err = FlowFailed, err
		return billing.AdjustmentResult{}, err
	}
	f.state, f.err = FlowCommitted, nil
	f.invoice = result.Invoice
	f.result = &result
	return result, nil
}

// Discard drops the pending proposal and returns to idle.
func (f *AdjustmentFlow) Discard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FlowCommitting {
		return f.busy("discard adjustment")
	}
	f.state, f.proposal, f.result, f.err, f.key = FlowIdle, nil, nil, nil, ""
	return nil
}

// Reset starts over on a fresh copy of the invoice.
func (f *AdjustmentFlow) Reset(invoice billing.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FlowCommitting {
		return f.busy("reset adjustment")
	}
	f.invoice = invoice
	f.state, f.proposal, f.result, f.err, f.key = FlowIdle, nil, nil, nil, ""
	return nil
}

// State returns the current step.
func (f *AdjustmentFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Invoice returns the invoice as last confirmed by the service.
func (f *AdjustmentFlow) Invoice() billing.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invoice
}

// Proposal returns the proposal awaiting confirmation, if any.
func (f *AdjustmentFlow) Proposal() (billing.Proposal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.proposal == nil {
		return billing.Proposal{}, false
	}
	return *f.proposal, true
}

// Err returns the last validation or commit failure.
func (f *AdjustmentFlow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *AdjustmentFlow) busy(op string) error {
	return &shared.StateError{Op: op, State: string(f.state), Reason: "the adjustment is still being submitted"}
}
