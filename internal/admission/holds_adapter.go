package admission

import (
	"context"

	"tixly/internal/inventory"
)

// HoldOverflowGate adapts the queue service to the overflow hook the
// hold controller calls when stock runs out mid-acquire.
type HoldOverflowGate struct {
	queue Service
}

// NewHoldOverflowGate creates the adapter around a queue service
func NewHoldOverflowGate(queue Service) *HoldOverflowGate {
	return &HoldOverflowGate{queue: queue}
}

// Enqueue places the failed acquire into the event's admission queue
func (g *HoldOverflowGate) Enqueue(ctx context.Context, eventID string, selections []inventory.HoldEntry, requesterID, traceID string) (*inventory.QueuePlacement, error) {
	queueSelections := make([]Selection, 0, len(selections))
	for _, sel := range selections {
		queueSelections = append(queueSelections, Selection{
			CategoryID: sel.CategoryID,
			Quantity:   sel.Quantity,
		})
	}

	result, err := g.queue.Join(ctx, JoinRequest{
		EventID:       eventID,
		Selections:    queueSelections,
		RequesterID:   requesterID,
		CorrelationID: traceID,
		TraceID:       traceID,
	})
	if err != nil {
		return nil, err
	}

	return &inventory.QueuePlacement{
		QueueID:    result.QueueID,
		Position:   result.Position,
		ETASeconds: result.ETASeconds,
	}, nil
}
