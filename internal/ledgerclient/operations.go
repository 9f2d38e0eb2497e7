package ledgerclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/payments"
	"github.com/exceva/property-ledger/internal/renewal"
	"github.com/exceva/property-ledger/internal/statement"
)

type adjustmentWire struct {
	InvoiceID     int64           `json:"invoice_id"`
	Type          string          `json:"type"`
	AmountType    string          `json:"amount_type"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	Notes         string          `json:"notes,omitempty"`
	EffectiveDate string          `json:"effective_date,omitempty"`

	ExpectedPreviousTotal *decimal.Decimal `json:"expected_previous_total,omitempty"`
	ExpectedDelta         *decimal.Decimal `json:"expected_delta,omitempty"`
}

// toReviewedWire carries the figures the operator confirmed so the service
// can refuse a commit against a total that has since moved.
func toReviewedWire(p billing.Proposal) adjustmentWire {
	w := toAdjustmentWire(p.Request)
	previous, delta := p.PreviousTotal, p.Delta
	w.ExpectedPreviousTotal, w.ExpectedDelta = &previous, &delta
	return w
}

func toAdjustmentWire(req billing.AdjustmentRequest) adjustmentWire {
	w := adjustmentWire{
		InvoiceID:  req.InvoiceID,
		Type:       string(req.Type),
		AmountType: string(req.AmountType),
		Amount:     req.Value,
		Reason:     req.Reason,
		Notes:      req.Notes,
	}
	if !req.EffectiveDate.IsZero() {
		w.EffectiveDate = req.EffectiveDate.Format(time.DateOnly)
	}
	return w
}

type invoiceWire struct {
	LeaseID int64              `json:"lease_id,omitempty"`
	Month   string             `json:"month,omitempty"`
	Lines   []billing.LineItem `json:"line_items"`
}

type paymentWire struct {
	TenantID  int64           `json:"tenant_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Date      string          `json:"date"`
	Reference string          `json:"reference,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

type renewalWire struct {
	LeaseID              int64            `json:"lease_id"`
	NewStartDate         string           `json:"new_start_date"`
	NewEndDate           string           `json:"new_end_date"`
	EscalationPercentage decimal.Decimal  `json:"escalation_percentage"`
	NewMonthlyRent       *decimal.Decimal `json:"new_monthly_rent,omitempty"`
	Notes                string           `json:"notes,omitempty"`
}

func dateOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// FinancialSummary fetches portfolio totals.
func (c *Client) FinancialSummary(ctx context.Context) (billing.FinancialSummary, error) {
	var out billing.FinancialSummary
	err := c.do(ctx, call{op: "get financial summary", method: http.MethodGet, path: "/summary"}, &out)
	return out, err
}

// PreviewAdjustment asks the service to validate an adjustment without
// committing it.
func (c *Client) PreviewAdjustment(ctx context.Context, req billing.AdjustmentRequest) (billing.Proposal, error) {
	var out billing.Proposal
	err := c.do(ctx, call{op: "preview adjustment", method: http.MethodPost, path: "/adjustments/preview", body: toAdjustmentWire(req)}, &out)
	return out, err
}

// CreateAdjustment commits a reviewed proposal. The key makes a resubmission
// of the same confirmation harmless.
func (c *Client) CreateAdjustment(ctx context.Context, reviewed billing.Proposal, idempotencyKey string) (billing.AdjustmentResult, error) {
	var out struct {
		Success bool `json:"success"`
		billing.AdjustmentResult
	}
	err := c.do(ctx, call{op: "create adjustment", method: http.MethodPost, path: "/adjustments", body: toReviewedWire(reviewed), idempotencyKey: idempotencyKey}, &out)
	return out.AdjustmentResult, err
}

// AllocatePayment records a tenant payment and applies it.
func (c *Client) AllocatePayment(ctx context.Context, in payments.PaymentInput, idempotencyKey string) (payments.AllocationResult, error) {
	var out payments.AllocationResult
	body := paymentWire{
		TenantID:  in.TenantID,
		Amount:    in.Amount,
		Method:    string(in.Method),
		Date:      dateOrEmpty(in.Date),
		Reference: in.Reference,
		Notes:     in.Notes,
	}
	err := c.do(ctx, call{op: "allocate payment", method: http.MethodPost, path: "/payments", body: body, idempotencyKey: idempotencyKey}, &out)
	return out, err
}

// GetLeaseStatement fetches a reconciled statement. Zero dates let the
// service pick the lease start and today.
func (c *Client) GetLeaseStatement(ctx context.Context, leaseID int64, start, end time.Time) (statement.Statement, error) {
	q := url.Values{}
	if s := dateOrEmpty(start); s != "" {
		q.Set("start", s)
	}
	if e := dateOrEmpty(end); e != "" {
		q.Set("end", e)
	}
	path := fmt.Sprintf("/leases/%d/statement", leaseID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out statement.Statement
	err := c.do(ctx, call{op: "get lease statement", method: http.MethodGet, path: path}, &out)
	return out, err
}

// NavigateToMonth returns the invoice of a lease month or its draft data.
func (c *Client) NavigateToMonth(ctx context.Context, leaseID int64, month string) (billing.MonthView, error) {
	var out billing.MonthView
	err := c.do(ctx, call{op: "navigate to month", method: http.MethodGet, path: fmt.Sprintf("/leases/%d/months/%s", leaseID, url.PathEscape(month))}, &out)
	return out, err
}

// SaveDraft persists an unnumbered draft.
func (c *Client) SaveDraft(ctx context.Context, draft billing.Draft) (billing.Draft, error) {
	var out billing.Draft
	path := fmt.Sprintf("/leases/%d/months/%s/draft", draft.LeaseID, url.PathEscape(draft.Month))
	err := c.do(ctx, call{op: "save draft", method: http.MethodPut, path: path, body: invoiceWire{Lines: draft.Lines}}, &out)
	return out, err
}

// CreateInvoiceFromDraft promotes a draft into a numbered invoice.
func (c *Client) CreateInvoiceFromDraft(ctx context.Context, draft billing.Draft) (billing.Invoice, error) {
	var out billing.Invoice
	body := invoiceWire{LeaseID: draft.LeaseID, Month: draft.Month, Lines: draft.Lines}
	err := c.do(ctx, call{op: "create invoice", method: http.MethodPost, path: "/invoices", body: body}, &out)
	return out, err
}

// SendInvoice locks an invoice and issues it to the tenant.
func (c *Client) SendInvoice(ctx context.Context, invoiceID int64) (billing.Invoice, error) {
	var out billing.Invoice
	err := c.do(ctx, call{op: "send invoice", method: http.MethodPost, path: fmt.Sprintf("/invoices/%d/send", invoiceID)}, &out)
	return out, err
}

// GetInvoice fetches one invoice.
func (c *Client) GetInvoice(ctx context.Context, invoiceID int64) (billing.Invoice, error) {
	var out billing.Invoice
	err := c.do(ctx, call{op: "get invoice", method: http.MethodGet, path: fmt.Sprintf("/invoices/%d", invoiceID)}, &out)
	return out, err
}

// GetTenantCreditBalance fetches a tenant's unapplied credit.
func (c *Client) GetTenantCreditBalance(ctx context.Context, tenantID int64) (payments.CreditBalance, error) {
	var out payments.CreditBalance
	err := c.do(ctx, call{op: "get credit balance", method: http.MethodGet, path: fmt.Sprintf("/tenants/%d/credit-balance", tenantID)}, &out)
	return out, err
}

// GetRecurringCharges lists a lease's standing charges.
func (c *Client) GetRecurringCharges(ctx context.Context, leaseID int64) ([]billing.RecurringCharge, error) {
	var out struct {
		Charges []billing.RecurringCharge `json:"charges"`
	}
	err := c.do(ctx, call{op: "get recurring charges", method: http.MethodGet, path: fmt.Sprintf("/leases/%d/recurring-charges", leaseID)}, &out)
	return out.Charges, err
}

// InitiateRenewal proposes a lease renewal.
func (c *Client) InitiateRenewal(ctx context.Context, p renewal.Proposal) (renewal.LeaseRenewal, error) {
	var out renewal.LeaseRenewal
	body := renewalWire{
		LeaseID:              p.LeaseID,
		NewStartDate:         dateOrEmpty(p.NewStartDate),
		NewEndDate:           dateOrEmpty(p.NewEndDate),
		EscalationPercentage: p.EscalationPercentage,
		NewMonthlyRent:       p.NewMonthlyRent,
		Notes:                p.Notes,
	}
	err := c.do(ctx, call{op: "initiate renewal", method: http.MethodPost, path: "/renewals", body: body}, &out)
	return out, err
}

// UpdateRenewalStatus moves a renewal through its lifecycle.
func (c *Client) UpdateRenewalStatus(ctx context.Context, id int64, status renewal.Status) (renewal.LeaseRenewal, error) {
	var out renewal.LeaseRenewal
	body := map[string]string{"status": string(status)}
	err := c.do(ctx, call{op: "update renewal status", method: http.MethodPost, path: fmt.Sprintf("/renewals/%d/status", id), body: body}, &out)
	return out, err
}

// SetRenewalAcceptance records one party's answer.
func (c *Client) SetRenewalAcceptance(ctx context.Context, id int64, party renewal.Party, accepted bool) (renewal.LeaseRenewal, error) {
	var out renewal.LeaseRenewal
	body := map[string]any{"party": string(party), "accepted": accepted}
	err := c.do(ctx, call{op: "record renewal acceptance", method: http.MethodPost, path: fmt.Sprintf("/renewals/%d/acceptance", id), body: body}, &out)
	return out, err
}

// SendRenewalNotification asks the service to notify the tenant.
func (c *Client) SendRenewalNotification(ctx context.Context, id int64, method renewal.Method) (renewal.NotificationResult, error) {
	var out renewal.NotificationResult
	body := map[string]string{"method": string(method)}
	err := c.do(ctx, call{op: "send renewal notification", method: http.MethodPost, path: fmt.Sprintf("/renewals/%d/notify", id), body: body}, &out)
	return out, err
}
