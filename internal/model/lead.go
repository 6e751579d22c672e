// internal/model/lead.go
package model

// Lead is read-only to the campaign engine; the lead store owns it.
type Lead struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Client      string    `json:"client"`
	Status      string    `json:"status"`
	Tags        []string  `json:"tags,omitempty"`
	AssignedTo  *Assignee `json:"assigned_to,omitempty"`
	People      []Person  `json:"people,omitempty"`
	ClientPhone string    `json:"client_phone,omitempty"`
}

type Assignee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// LeadFilter is the lead selection criteria captured on the job. The lead
// store interprets it; the engine only carries it.
type LeadFilter struct {
	FunnelID string   `json:"funnel_id,omitempty"`
	StageIDs []string `json:"stage_ids,omitempty"`
	Statuses []string `json:"statuses,omitempty"`
	TagIDs   []string `json:"tag_ids,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}
