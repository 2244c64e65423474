package translate

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

const (
	jiraTimeLayout  = "2006-01-02T15:04:05.000-0700"
	channelLabelTag = "canal:"
)

// Config binds the translator to one tracker project and its custom field
// layout.
type Config struct {
	ProjectKey       string
	FeatureField     string
	SprintField      string
	IssueTypeDefect  string
	IssueTypeRequest string
	TicketIDField    string
	CompanyField     string
}

// Translator normalizes tracker payloads into internal ticket records. It is
// pure with respect to its inputs except for mapping store reads.
type Translator struct {
	mappings MappingSource
	cfg      Config
}

// NewTranslator builds a translator bound to the tracker project this engine
// owns. Payloads for any other project translate to an ignored result.
func NewTranslator(mappings MappingSource, cfg Config) *Translator {
	if cfg.SprintField == "" {
		cfg.SprintField = "customfield_10020"
	}
	return &Translator{mappings: mappings, cfg: cfg}
}

// envelopeProbe holds the discriminating fields of all three shapes.
type envelopeProbe struct {
	WebhookEvent string          `json:"webhookEvent"`
	Issue        json.RawMessage `json:"issue"`
	TicketID     string          `json:"ticket_id"`
	JiraIssue    json.RawMessage `json:"jira_issue"`
	EventType    string          `json:"event_type"`
	JiraIssueKey string          `json:"jira_issue_key"`
	JiraIssueID  string          `json:"jira_issue_id"`
	Updates      json.RawMessage `json:"updates"`
}

type namedValue struct {
	Name string `json:"name"`
}

type accountRef struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

type issueFields struct {
	Summary     string       `json:"summary"`
	Description any          `json:"description"`
	Status      *namedValue  `json:"status"`
	Priority    *namedValue  `json:"priority"`
	IssueType   *namedValue  `json:"issuetype"`
	Assignee    *accountRef  `json:"assignee"`
	Reporter    *accountRef  `json:"reporter"`
	Resolution  *namedValue  `json:"resolution"`
	FixVersions []namedValue `json:"fixVersions"`
	Labels      []string     `json:"labels"`
	Components  []namedValue `json:"components"`
	Created     string       `json:"created"`
	Updated     string       `json:"updated"`
}

type nativeIssue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
	raw    map[string]json.RawMessage
}

// fullIssue is the pre-shaped external-issue structure of the full-payload
// envelope: the same data as the native issue, but flattened one level.
type fullIssue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
	issueFields
	raw map[string]json.RawMessage
}

type legacyUpdates struct {
	Status        string `json:"status"`
	StatusFrom    string `json:"status_from"`
	StatusTo      string `json:"status_to"`
	Priority      string `json:"priority"`
	Summary       string `json:"summary"`
	Description   string `json:"description"`
	Resolution    string `json:"resolution"`
	Channel       string `json:"channel"`
	Comment       string `json:"comment"`
	CommentAuthor string `json:"comment_author"`
	Assignee      string `json:"assignee"`
}

// TranslateInbound normalizes one of the three accumulated payload shapes
// into canonical form. Shapes are attempted in fixed precedence order
// (native, then full-payload, then legacy); the first structural match wins.
// Unrecognized payloads produce a validation error, never a guess.
func (t *Translator) TranslateInbound(ctx context.Context, raw []byte) (*NormalizedTicket, error) {
	var probe envelopeProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, apperrors.NewValidationError("malformed notification payload", map[string]any{"parse_error": err.Error()})
	}

	switch {
	case probe.WebhookEvent != "" && len(probe.Issue) > 0:
		return t.translateNative(ctx, probe)
	case len(probe.JiraIssue) > 0 && probe.TicketID != "":
		return t.translateFull(ctx, probe)
	case probe.EventType != "" && probe.JiraIssueKey != "":
		return t.translateLegacy(ctx, probe)
	default:
		return nil, apperrors.NewValidationError("unrecognized notification payload", nil)
	}
}

func (t *Translator) translateNative(ctx context.Context, probe envelopeProbe) (*NormalizedTicket, error) {
	var issue nativeIssue
	if err := json.Unmarshal(probe.Issue, &issue); err != nil {
		return nil, apperrors.NewValidationError("malformed issue object", map[string]any{"parse_error": err.Error()})
	}
	if issue.Key == "" {
		return nil, apperrors.NewValidationError("issue object missing key", nil)
	}
	if ignored := t.filterForeign(issue.Key, ShapeNative, probe.WebhookEvent); ignored != nil {
		return ignored, nil
	}

	var rawFields struct {
		Fields map[string]json.RawMessage `json:"fields"`
	}
	_ = json.Unmarshal(probe.Issue, &rawFields)
	issue.raw = rawFields.Fields

	result := &NormalizedTicket{
		Shape:       ShapeNative,
		Event:       probe.WebhookEvent,
		ExternalKey: issue.Key,
		ExternalID:  issue.ID,
	}
	if err := t.applyIssueFields(ctx, result, issue.Fields, issue.raw); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *Translator) translateFull(ctx context.Context, probe envelopeProbe) (*NormalizedTicket, error) {
	var issue fullIssue
	if err := json.Unmarshal(probe.JiraIssue, &issue); err != nil {
		return nil, apperrors.NewValidationError("malformed jira_issue object", map[string]any{"parse_error": err.Error()})
	}
	if issue.Key == "" {
		return nil, apperrors.NewValidationError("jira_issue object missing key", nil)
	}
	if ignored := t.filterForeign(issue.Key, ShapeFull, "full_sync"); ignored != nil {
		return ignored, nil
	}

	var raw map[string]json.RawMessage
	_ = json.Unmarshal(probe.JiraIssue, &raw)

	ticketID := probe.TicketID
	result := &NormalizedTicket{
		Shape:       ShapeFull,
		Event:       "full_sync",
		ExternalKey: issue.Key,
		ExternalID:  issue.ID,
		TicketRef:   &ticketID,
	}
	if err := t.applyIssueFields(ctx, result, issue.issueFields, raw); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *Translator) translateLegacy(ctx context.Context, probe envelopeProbe) (*NormalizedTicket, error) {
	if ignored := t.filterForeign(probe.JiraIssueKey, ShapeLegacy, probe.EventType); ignored != nil {
		return ignored, nil
	}

	var updates legacyUpdates
	if len(probe.Updates) > 0 {
		if err := json.Unmarshal(probe.Updates, &updates); err != nil {
			return nil, apperrors.NewValidationError("malformed updates object", map[string]any{"parse_error": err.Error()})
		}
	}

	result := &NormalizedTicket{
		Shape:       ShapeLegacy,
		Event:       probe.EventType,
		ExternalKey: probe.JiraIssueKey,
		ExternalID:  probe.JiraIssueID,
	}

	if updates.Summary != "" {
		result.Title = &updates.Summary
	}
	if updates.Description != "" {
		result.Description = &updates.Description
	}
	if updates.Resolution != "" {
		result.Resolution = &updates.Resolution
	}
	// The legacy envelope carries no issue type, so the status stays
	// external here; the reconciler resolves it once the target ticket's
	// type is known.
	status := updates.Status
	if status == "" && updates.StatusTo != "" {
		status = updates.StatusTo
	}
	if status != "" {
		result.StatusExternal = &status
	}
	if updates.Priority != "" {
		result.PriorityExternal = &updates.Priority
		t.resolvePriority(ctx, result)
	}
	if updates.Channel != "" {
		result.ChannelExternal = &updates.Channel
		t.resolveChannel(ctx, result)
	}
	if updates.Assignee != "" {
		result.AssigneeAccountID = &updates.Assignee
	}

	switch probe.EventType {
	case "status_changed":
		result.SideEffects.StatusFrom = optional(updates.StatusFrom)
		result.SideEffects.StatusTo = optional(updates.StatusTo)
	case "comment_added":
		result.SideEffects.Comment = optional(updates.Comment)
		result.SideEffects.CommentAuthor = optional(updates.CommentAuthor)
	}
	return result, nil
}

// filterForeign returns an ignored result when the key belongs to a project
// this engine does not own. A single webhook endpoint can then safely coexist
// with unrelated external projects.
func (t *Translator) filterForeign(key string, shape Shape, event string) *NormalizedTicket {
	project := key
	if idx := strings.Index(key, "-"); idx > 0 {
		project = key[:idx]
	}
	if strings.EqualFold(project, t.cfg.ProjectKey) {
		return nil
	}
	return &NormalizedTicket{
		Shape:         shape,
		Event:         event,
		ExternalKey:   key,
		Ignored:       true,
		IgnoredReason: "issue belongs to foreign project " + project,
	}
}

func (t *Translator) applyIssueFields(ctx context.Context, result *NormalizedTicket, fields issueFields, raw map[string]json.RawMessage) error {
	if fields.Summary != "" {
		result.Title = &fields.Summary
	}
	if desc := descriptionText(fields.Description); desc != "" {
		result.Description = &desc
	}
	if fields.IssueType != nil {
		result.Type = TicketTypeFromIssueType(fields.IssueType.Name)
	}
	if fields.Status != nil && fields.Status.Name != "" {
		result.StatusExternal = &fields.Status.Name
		if result.Type != "" {
			if internal, ok, err := t.ResolveStatus(ctx, fields.Status.Name, result.Type); err != nil {
				return err
			} else if ok {
				result.Status = &internal
			} else {
				result.Unmapped = append(result.Unmapped, FieldStatus)
			}
		}
	}
	if fields.Priority != nil && fields.Priority.Name != "" {
		result.PriorityExternal = &fields.Priority.Name
		if err := t.resolvePriority(ctx, result); err != nil {
			return err
		}
	}
	if fields.Assignee != nil && fields.Assignee.AccountID != "" {
		result.AssigneeAccountID = &fields.Assignee.AccountID
	}
	if fields.Reporter != nil && fields.Reporter.AccountID != "" {
		result.ReporterAccountID = &fields.Reporter.AccountID
	}
	if fields.Resolution != nil && fields.Resolution.Name != "" {
		result.Resolution = &fields.Resolution.Name
	}
	if len(fields.FixVersions) > 0 && fields.FixVersions[0].Name != "" {
		result.FixVersion = &fields.FixVersions[0].Name
	}
	result.Labels = fields.Labels
	for _, component := range fields.Components {
		result.Components = append(result.Components, component.Name)
	}
	if channel := channelFromLabels(fields.Labels); channel != "" {
		result.ChannelExternal = &channel
		if err := t.resolveChannel(ctx, result); err != nil {
			return err
		}
	}
	if created := parseJiraTime(fields.Created); created != nil {
		result.CreatedAt = created
	}
	if updated := parseJiraTime(fields.Updated); updated != nil {
		result.UpdatedAt = updated
	}
	t.applyCustomFields(ctx, result, raw)
	return nil
}

// applyCustomFields extracts the feature classification and sprint reference
// plus the opaque custom field bag from the raw field map.
func (t *Translator) applyCustomFields(ctx context.Context, result *NormalizedTicket, raw map[string]json.RawMessage) {
	if raw == nil {
		return
	}
	if value := customFieldString(raw[t.cfg.FeatureField]); value != "" {
		result.FeatureValue = &value
		if internal, ok, err := t.mappings.Lookup(ctx, domain.MappingKindFeature, value, ""); err == nil && ok {
			result.FeatureID = &internal
		} else {
			result.Unmapped = append(result.Unmapped, FieldFeature)
		}
	}
	if sprint := customFieldID(raw[t.cfg.SprintField]); sprint != "" {
		result.SprintID = &sprint
	}
	custom := make(map[string]any)
	for key, value := range raw {
		if !strings.HasPrefix(key, "customfield_") || key == t.cfg.SprintField {
			continue
		}
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil || decoded == nil {
			continue
		}
		custom[key] = decoded
	}
	if len(custom) > 0 {
		result.CustomFields = custom
	}
}

// ResolveStatus maps a tracker status name to the internal status for the
// given ticket type. Defect and request tickets store the tracker's raw
// status names directly; support tickets go through the mapping table.
func (t *Translator) ResolveStatus(ctx context.Context, external string, ticketType domain.TicketType) (string, bool, error) {
	if ticketType == domain.TicketTypeDefect || ticketType == domain.TicketTypeRequest {
		return external, true, nil
	}
	internal, ok, err := t.mappings.Lookup(ctx, domain.MappingKindStatus, external, ticketType)
	if err != nil {
		return "", false, err
	}
	return internal, ok, nil
}

func (t *Translator) resolvePriority(ctx context.Context, result *NormalizedTicket) error {
	internal, ok, err := t.mappings.Lookup(ctx, domain.MappingKindPriority, *result.PriorityExternal, "")
	if err != nil {
		return err
	}
	if !ok {
		result.Unmapped = append(result.Unmapped, FieldPriority)
		return nil
	}
	priority := domain.TicketPriority(internal)
	result.Priority = &priority
	return nil
}

func (t *Translator) resolveChannel(ctx context.Context, result *NormalizedTicket) error {
	internal, ok, err := t.mappings.Lookup(ctx, domain.MappingKindChannel, *result.ChannelExternal, "")
	if err != nil {
		return err
	}
	if !ok {
		result.Unmapped = append(result.Unmapped, FieldChannel)
		return nil
	}
	result.Channel = &internal
	return nil
}

// TicketTypeFromIssueType maps the tracker's issue type name onto the closed
// internal ticket type set.
func TicketTypeFromIssueType(issueType string) domain.TicketType {
	upper := strings.ToUpper(issueType)
	switch {
	case strings.Contains(upper, "BUG"):
		return domain.TicketTypeDefect
	case strings.Contains(upper, "REQ"), strings.Contains(upper, "STORY"):
		return domain.TicketTypeRequest
	default:
		return domain.TicketTypeSupport
	}
}

// Snapshot converts the normalized ticket into the tracker-side snapshot
// written onto the sync record.
func (n *NormalizedTicket) Snapshot() domain.ExternalSnapshot {
	return domain.ExternalSnapshot{
		ExternalKey: n.ExternalKey,
		Status:      n.StatusExternal,
		Priority:    n.PriorityExternal,
		Assignee:    n.AssigneeAccountID,
		Reporter:    n.ReporterAccountID,
		Resolution:  n.Resolution,
		FixVersion:  n.FixVersion,
		SprintID:    n.SprintID,
		Labels:      n.Labels,
		Components:  n.Components,
	}
}

func descriptionText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		// ADF object; keep the raw document so nothing is lost.
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

func channelFromLabels(labels []string) string {
	for _, label := range labels {
		if strings.HasPrefix(label, channelLabelTag) {
			return strings.TrimPrefix(label, channelLabelTag)
		}
	}
	return ""
}

func customFieldString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asOption struct {
		Value string `json:"value"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(raw, &asOption); err == nil {
		if asOption.Value != "" {
			return asOption.Value
		}
		return asOption.Name
	}
	return ""
}

func customFieldID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asObject struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil && asObject.ID != "" {
		return asObject.ID.String()
	}
	return ""
}

func parseJiraTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(jiraTimeLayout, value)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return nil
		}
	}
	return &parsed
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
