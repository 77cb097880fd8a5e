package inventory

// HoldSelection is one requested category line in an acquire call
type HoldSelection struct {
	CategoryID string `json:"category_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
}

type AcquireHoldRequest struct {
	EventID     string          `json:"event_id" validate:"required,uuid"`
	Selections  []HoldSelection `json:"selections" validate:"required,min=1,dive"`
	RequesterID string          `json:"requester_id" validate:"omitempty,max=128"`
}

type ExtendHoldRequest struct {
	ExtendSeconds int `json:"extend_seconds" validate:"omitempty,min=1,max=3600"`
}

type ReleaseHoldRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}
