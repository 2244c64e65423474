package domain

import "time"

// MappingKind scopes a mapping entry to one external vocabulary.
type MappingKind string

const (
	MappingKindStatus   MappingKind = "status"
	MappingKindPriority MappingKind = "priority"
	MappingKindChannel  MappingKind = "channel"
	MappingKindFeature  MappingKind = "feature"
)

// MappingEntry translates one external vocabulary value into one internal
// value. Status mappings are additionally scoped by ticket type because the
// same tracker status name can mean different internal statuses depending on
// the kind of ticket. TicketType is empty for unscoped kinds.
type MappingEntry struct {
	ID            string
	Kind          MappingKind
	ExternalValue string
	InternalValue string
	TicketType    TicketType
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
