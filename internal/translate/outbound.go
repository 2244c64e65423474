package translate

import (
	"context"
	"strings"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/jira"
)

// trackerPriorityIDs are the tracker's numeric priority identifiers, highest
// first. A configured reverse priority mapping takes precedence; this table
// is the fallback.
var trackerPriorityIDs = map[domain.TicketPriority]string{
	domain.TicketPriorityCritical: "1",
	domain.TicketPriorityHigh:     "2",
	domain.TicketPriorityMedium:   "3",
	domain.TicketPriorityLow:      "4",
}

// TranslateOutbound builds a tracker-native creation payload for a ticket.
// References that require lookups (product/module names, the company's
// tracker id) arrive pre-resolved in the input.
func (t *Translator) TranslateOutbound(ctx context.Context, input OutboundInput) (jira.IssuePayload, error) {
	ticket := input.Ticket

	fields := map[string]any{
		"project":   map[string]any{"key": t.cfg.ProjectKey},
		"summary":   ticket.Title,
		"issuetype": map[string]any{"name": t.issueTypeName(ticket.Type)},
	}

	fields["priority"] = t.priorityField(ctx, ticket.Priority)
	fields["description"] = jira.ADFFromText(t.outboundDescription(input))

	if labels := t.outboundLabels(input); len(labels) > 0 {
		fields["labels"] = labels
	}
	if t.cfg.TicketIDField != "" {
		fields[t.cfg.TicketIDField] = ticket.ID
	}
	if t.cfg.CompanyField != "" && input.CompanyTrackerID != "" {
		fields[t.cfg.CompanyField] = input.CompanyTrackerID
	}

	return jira.IssuePayload{Fields: fields}, nil
}

func (t *Translator) issueTypeName(ticketType domain.TicketType) string {
	if ticketType == domain.TicketTypeDefect {
		return t.cfg.IssueTypeDefect
	}
	return t.cfg.IssueTypeRequest
}

// priorityField prefers a seeded reverse mapping (internal priority back to
// the tracker's vocabulary) and falls back to the numeric identifier table.
func (t *Translator) priorityField(ctx context.Context, priority domain.TicketPriority) map[string]any {
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if external, ok, err := t.mappings.ReverseLookup(ctx, domain.MappingKindPriority, string(priority), ""); err == nil && ok {
		return map[string]any{"name": external}
	}
	id, ok := trackerPriorityIDs[priority]
	if !ok {
		id = trackerPriorityIDs[domain.TicketPriorityMedium]
	}
	return map[string]any{"id": id}
}

// outboundDescription appends the customer context block the support team
// relies on when triaging mirrored issues.
func (t *Translator) outboundDescription(input OutboundInput) string {
	var b strings.Builder
	b.WriteString(input.Ticket.Description)

	hasContext := input.CustomerContext != "" || input.Channel != "" || input.ProductName != "" || input.ModuleName != ""
	if !hasContext {
		return b.String()
	}

	b.WriteString("\n\n")
	writeContextLine(&b, "Customer context", input.CustomerContext)
	writeContextLine(&b, "Channel", input.Channel)
	writeContextLine(&b, "Product", input.ProductName)
	writeContextLine(&b, "Module", input.ModuleName)
	return b.String()
}

func writeContextLine(b *strings.Builder, label, value string) {
	if value == "" {
		value = "N/A"
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

// outboundLabels derives labels from channel/product/module, normalizing
// whitespace for the tracker's label syntax.
func (t *Translator) outboundLabels(input OutboundInput) []string {
	var labels []string
	if input.Channel != "" {
		labels = append(labels, channelLabelTag+labelValue(input.Channel))
	}
	if input.ProductName != "" {
		labels = append(labels, "product:"+labelValue(input.ProductName))
	}
	if input.ModuleName != "" {
		labels = append(labels, "module:"+labelValue(input.ModuleName))
	}
	return labels
}

func labelValue(value string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(value)), "-")
}
