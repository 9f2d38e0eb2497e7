package renewal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates renewal lifecycle statuses.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
)

// Active reports whether the renewal still blocks another one on its lease.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// Party names who accepts a renewal.
type Party string

const (
	PartyTenant   Party = "tenant"
	PartyLandlord Party = "landlord"
)

// Method is a notification channel.
type Method string

const (
	MethodEmail Method = "email"
	MethodSMS   Method = "sms"
)

// Valid reports whether the channel is supported.
func (m Method) Valid() bool {
	return m == MethodEmail || m == MethodSMS
}

// LeaseTerms is the current lease a renewal is proposed against.
type LeaseTerms struct {
	LeaseID     int64
	TenantID    int64
	MonthlyRent decimal.Decimal
	StartDate   time.Time
	EndDate     time.Time
	Active      bool
	TenantName  string
	TenantEmail string
	TenantPhone string
}

// LeaseRenewal is a proposal to extend a lease at a new rent.
type LeaseRenewal struct {
	ID                   int64           `json:"id"`
	LeaseID              int64           `json:"lease_id"`
	TenantID             int64           `json:"tenant_id"`
	CurrentRent          decimal.Decimal `json:"current_rent"`
	NewStartDate         time.Time       `json:"new_start_date"`
	NewEndDate           time.Time       `json:"new_end_date"`
	NewMonthlyRent       decimal.Decimal `json:"new_monthly_rent"`
	EscalationPercentage decimal.Decimal `json:"escalation_percentage"`
	Status               Status          `json:"status"`
	TenantAcceptance     bool            `json:"tenant_acceptance"`
	LandlordAcceptance   bool            `json:"landlord_acceptance"`
	Notes                string          `json:"notes,omitempty"`
	LastNotifiedAt       *time.Time      `json:"last_notified_at,omitempty"`
	LastNotifiedVia      Method          `json:"last_notified_via,omitempty"`
	CreatedBy            int64           `json:"created_by,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Proposal is the operator's renewal input. NewMonthlyRent overrides the
// escalated suggestion when set.
type Proposal struct {
	LeaseID              int64
	NewStartDate         time.Time
	NewEndDate           time.Time
	EscalationPercentage decimal.Decimal
	NewMonthlyRent       *decimal.Decimal
	Notes                string
}

// Notice is what a tenant receives about a renewal.
type Notice struct {
	RenewalID int64
	Method    Method
	To        string
	Subject   string
	Body      string
}

// NotificationResult mirrors the {success, message} acknowledgement.
type NotificationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
