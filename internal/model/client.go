package model

import "time"

// ClientStatus represents the account standing of a client.
type ClientStatus string

const (
	ClientActive    ClientStatus = "active"
	ClientInactive  ClientStatus = "inactive"
	ClientSuspended ClientStatus = "suspended"
)

// ClientFacts is the read-only snapshot of a client consumed by the factor
// collectors. Optional fields are empty strings when the record is incomplete;
// incompleteness is itself a risk signal, not an error.
type ClientFacts struct {
	ID                 string       `json:"id"`
	OrgID              string       `json:"org_id"`
	Name               string       `json:"name"`
	Status             ClientStatus `json:"status"`
	Email              string       `json:"email,omitempty"`
	Phone              string       `json:"phone,omitempty"`
	RegistrationNumber string       `json:"registration_number,omitempty"`
	Address            string       `json:"address,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// MissingFields returns the canonical contact fields absent from the record,
// in fixed order: email, phone, registration number, address.
func (c *ClientFacts) MissingFields() []string {
	var missing []string
	if c.Email == "" {
		missing = append(missing, "email")
	}
	if c.Phone == "" {
		missing = append(missing, "phone")
	}
	if c.RegistrationNumber == "" {
		missing = append(missing, "registration number")
	}
	if c.Address == "" {
		missing = append(missing, "address")
	}
	return missing
}

// TaxValidationStatus is the last known VAT verification outcome.
type TaxValidationStatus string

const (
	TaxValid    TaxValidationStatus = "valid"
	TaxInvalid  TaxValidationStatus = "invalid"
	TaxInactive TaxValidationStatus = "inactive"
	TaxUnknown  TaxValidationStatus = "unknown"
)

// TaxValidation is the most recent persisted VAT verification for a client.
// CheckedAt is nil when the number was never verified.
type TaxValidation struct {
	Status    TaxValidationStatus `json:"status"`
	CheckedAt *time.Time          `json:"checked_at,omitempty"`
}

// EventKind classifies timeline events relevant to risk scoring.
type EventKind string

const (
	EventDocumentSubmitted EventKind = "document_submitted"
	EventDocumentRejected  EventKind = "document_rejected"
	EventCommunication     EventKind = "communication"
	EventInvoiceOverdue    EventKind = "invoice_overdue"
	EventInvoicePaid       EventKind = "invoice_paid"
)

// ActivitySnapshot aggregates the timeline counters the collectors consume.
type ActivitySnapshot struct {
	RecentEvents       int        `json:"recent_events"`
	TotalEvents        int        `json:"total_events"`
	DocumentsSubmitted int        `json:"documents_submitted"`
	DocumentsRejected  int        `json:"documents_rejected"`
	OverdueInvoices    int        `json:"overdue_invoices"`
	PaidInvoices       int        `json:"paid_invoices"`
	LastCommunication  *time.Time `json:"last_communication,omitempty"`
}
