package domain

import "time"

// ActionMatterUpdated is the activity action written by the upstream audit
// system for a matter update. Correlation only ever considers these entries.
const ActionMatterUpdated = "matter_updated"

// ActivityEntry is an audit-log item owned and created exclusively by the
// upstream system of record. This subsystem only reads entries; the single
// annotation it ever adds is metadata.changed_fields at enrichment time.
type ActivityEntry struct {
	ID        string         `json:"id"`
	MatterID  string         `json:"matter_id"`
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DiffRecord is the persisted correlation result linking an activity entry to
// the fields that changed in the update it represents. Created once when
// correlation succeeds, never with an empty field list, and overwritten
// last-write-wins if the same activity id is ever re-submitted.
type DiffRecord struct {
	ActivityID string    `json:"activityId"`
	MatterID   string    `json:"matterId"`
	Fields     []string  `json:"fields"`
	UserID     string    `json:"userId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
