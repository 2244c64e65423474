package domain

import "time"

// Profile is a person referenced by tickets as assignee or reporter.
// JiraAccountID links the profile to the tracker's account identifier so
// inbound assignee/reporter references can be resolved locally.
type Profile struct {
	ID            string
	DisplayName   string
	Email         *string
	JiraAccountID *string
	CreatedAt     time.Time
}

// Company groups contacts and tickets. JiraCompanyID is the tracker's own
// identifier for the company, used when building outbound payloads.
type Company struct {
	ID            string
	Name          string
	JiraCompanyID *string
	CreatedAt     time.Time
}
