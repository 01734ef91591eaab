package realtime

import "github.com/google/uuid"

const (
	EventNewBid          = "new_bid"
	EventBidStatusUpdate = "bid_status_update"
	EventJobStatusUpdate = "job_status_update"
	EventReviewReceived  = "review_received"
	EventJobPosted       = "job_posted"
)

// Event is the envelope pushed to websocket clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Notifier delivers events to the open connections of one user or of everyone.
type Notifier interface {
	SendToUser(userID uuid.UUID, data interface{})
	Broadcast(data interface{})
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) SendToUser(uuid.UUID, interface{}) {}
func (NopNotifier) Broadcast(interface{})            {}
