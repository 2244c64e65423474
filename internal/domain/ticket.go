package domain

import "time"

// TicketType enumerates the kinds of work tracked in the system.
type TicketType string

const (
	TicketTypeDefect  TicketType = "DEFECT"
	TicketTypeRequest TicketType = "REQUEST"
	TicketTypeSupport TicketType = "SUPPORT"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// TicketOrigin records which system first created the ticket.
type TicketOrigin string

const (
	TicketOriginInternal TicketOrigin = "internal"
	TicketOriginExternal TicketOrigin = "external"
)

// UpdateSource marks the last writer of ticket fields.
type UpdateSource string

const (
	UpdateSourceInternal UpdateSource = "internal"
	UpdateSourceTracker  UpdateSource = "jira"
)

// Ticket is the aggregate synchronized with the external tracker.
//
// Status is an open string enumeration rather than a closed constant set:
// defect and request tickets store the tracker's raw status names, while
// support tickets use locally mapped statuses. The mapping layer owns the
// translation, not this type.
type Ticket struct {
	ID                  string
	Title               string
	Description         string
	Type                TicketType
	Status              string
	Priority            TicketPriority
	Channel             *string
	ExternalKey         *string
	ExternalID          *string
	Origin              TicketOrigin
	AssigneeID          *string
	ReporterID          *string
	CompanyID           *string
	AffectsAllCompanies bool
	ProductID           *string
	ModuleID            *string
	SubmoduleID         *string
	FeatureID           *string
	Resolution          *string
	FixVersion          *string
	CustomFields        map[string]any
	LastUpdateSource    UpdateSource
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ResolvedAt          *time.Time
}

// Linked reports whether the ticket is already joined to a tracker issue.
func (t *Ticket) Linked() bool {
	return t.ExternalKey != nil && *t.ExternalKey != ""
}
