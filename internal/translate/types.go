package translate

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// Shape identifies which of the historically accumulated payload shapes a
// notification matched.
type Shape string

const (
	ShapeNative Shape = "native"
	ShapeFull   Shape = "full"
	ShapeLegacy Shape = "legacy"
)

// Field names reported in NormalizedTicket.Unmapped.
const (
	FieldStatus   = "status"
	FieldPriority = "priority"
	FieldChannel  = "channel"
	FieldFeature  = "feature"
)

// MappingSource is the read-only slice of the mapping store the translator
// needs. Lookups return ("", false, nil) on a mapping miss; a miss is a
// valid result, not an error.
type MappingSource interface {
	Lookup(ctx context.Context, kind domain.MappingKind, externalValue string, ticketType domain.TicketType) (string, bool, error)
	ReverseLookup(ctx context.Context, kind domain.MappingKind, internalValue string, ticketType domain.TicketType) (string, bool, error)
}

// NormalizedTicket is the canonical form every inbound shape reduces to.
type NormalizedTicket struct {
	Shape       Shape
	Event       string
	ExternalKey string
	ExternalID  string

	// TicketRef is the explicit internal ticket reference carried only by
	// the full-payload envelope.
	TicketRef *string

	// Ignored is set when the payload's external key belongs to a foreign
	// project. Ignored results carry no field data.
	Ignored       bool
	IgnoredReason string

	Title       *string
	Description *string
	Type        domain.TicketType

	// StatusExternal and PriorityExternal hold the tracker's raw values;
	// Status and Priority hold the resolved internal values when a mapping
	// exists. Legacy envelopes carry no issue type, so their status stays
	// unresolved until the reconciler knows the target ticket's type.
	StatusExternal   *string
	Status           *string
	PriorityExternal *string
	Priority         *domain.TicketPriority
	ChannelExternal  *string
	Channel          *string

	AssigneeAccountID *string
	ReporterAccountID *string
	Resolution        *string
	FixVersion        *string
	SprintID          *string
	FeatureValue      *string
	FeatureID         *string
	Labels            []string
	Components        []string
	CustomFields      map[string]any

	CreatedAt *time.Time
	UpdatedAt *time.Time

	// Unmapped lists fields whose external value had no mapping entry.
	// Callers decide whether to leave them null, default them, or create
	// taxonomy entries lazily.
	Unmapped []string

	SideEffects SideEffects
}

// SideEffects are the additional best-effort writes requested by legacy
// envelope event kinds. They are applied after the primary update and never
// roll it back.
type SideEffects struct {
	StatusFrom    *string
	StatusTo      *string
	Comment       *string
	CommentAuthor *string
}

// IsUnmapped reports whether the named field had no mapping entry.
func (n *NormalizedTicket) IsUnmapped(field string) bool {
	for _, f := range n.Unmapped {
		if f == field {
			return true
		}
	}
	return false
}

// OutboundInput carries everything the outbound payload builder needs beyond
// the ticket itself. The publisher resolves these references so the
// translator stays pure.
type OutboundInput struct {
	Ticket          *domain.Ticket
	ProductName     string
	ModuleName      string
	CompanyTrackerID string
	CustomerContext string
	Channel         string
}
