package events

type EventStatus string

const (
	EventStatusDraft  EventStatus = "draft"
	EventStatusOnSale EventStatus = "on_sale"
	EventStatusClosed EventStatus = "closed"
)

// OnSale reports whether holds may be acquired for the event
func (s EventStatus) OnSale() bool {
	return s == EventStatusOnSale
}
