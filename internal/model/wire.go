package model

// Wire bodies of the coordinator HTTP API.

// PollResponse is the body of GET /api/poll. Event, TaskText and TaskID are
// JSON null when there is nothing to deliver.
type PollResponse struct {
	Event    *string `json:"event"`
	TaskText *string `json:"task_text"`
	TaskID   *string `json:"task_id"`
	Target   *string `json:"target"`
	QueueSizes
}

// QueueSizes reports the depth of each coordinator queue.
type QueueSizes struct {
	All   int `json:"queue_size"`
	Left  int `json:"left_queue_size"`
	Right int `json:"right_queue_size"`
}

// SendRequest is the body of POST /api/send (dashboard -> coordinator).
type SendRequest struct {
	Event    string `json:"event"`
	Target   string `json:"target,omitempty"`
	TaskText string `json:"task_text,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
}

type SendResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TaskID string `json:"task_id,omitempty"`
	QueueSizes
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	LatestEvent  *string  `json:"latest_event"`
	LatestTarget *string  `json:"latest_target"`
	Responses    []string `json:"responses"`
	QueueSizes
}

// AckResponse is the generic {ok, error} reply.
type AckResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
