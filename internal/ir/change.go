package ir

import "encoding/json"

// PushChange is one client-submitted mutation, and also the shape in which
// log entries are returned to pulling clients.
//
// Timestamp is advisory when submitted; on pull it carries the server timestamp.
type PushChange struct {
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     Action          `json:"action"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

// ChangeEntry is one row of a circle's append-only change log.
type ChangeEntry struct {
	ID         int64           `json:"id"`
	CircleID   string          `json:"circleId"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     Action          `json:"action"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  Timestamp       `json:"timestamp"`
}

// PushChange translates the stored entry into its wire form.
func (e ChangeEntry) PushChange() PushChange {
	return PushChange{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		Data:       e.Data,
		Timestamp:  e.Timestamp.String(),
	}
}

// PushRequest is the body of POST /sync/push.
type PushRequest struct {
	CircleID        string       `json:"circleId"`
	Changes         []PushChange `json:"changes"`
	ClientTimestamp string       `json:"clientTimestamp,omitempty"`
}

// PushResult is the outcome of one change within a push batch.
type PushResult struct {
	EntityID string       `json:"entityId"`
	Status   ChangeStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
}

// PushResponse aggregates a batch. Processed counts successes.
type PushResponse struct {
	Results         []PushResult `json:"results"`
	ServerTimestamp Timestamp    `json:"serverTimestamp"`
	Processed       int          `json:"processed"`
	Conflicts       int          `json:"conflicts"`
	Errors          int          `json:"errors"`
}

// Tally recomputes the counters from Results.
func (r *PushResponse) Tally() {
	r.Processed, r.Conflicts, r.Errors = 0, 0, 0
	for _, res := range r.Results {
		switch res.Status {
		case StatusSuccess:
			r.Processed++
		case StatusConflict:
			r.Conflicts++
		default:
			r.Errors++
		}
	}
}

// PullResponse is the body of GET /sync/changes.
type PullResponse struct {
	Changes         []PushChange `json:"changes"`
	ServerTimestamp Timestamp    `json:"serverTimestamp"`
	HasMore         bool         `json:"hasMore"`
}
