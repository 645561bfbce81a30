package manufacturing

import "errors"

// OrderStatus enumerates production order progress states.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusInProcess OrderStatus = "IN_PROCESS"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusStopped   OrderStatus = "STOPPED"
)

// Order is a manufacturing work order with planned vs produced quantities.
type Order struct {
	Name             string
	ProductionItem   string
	BOMNo            string
	Qty              float64
	ProducedQty      float64
	Status           OrderStatus
	DocStatus        int
	WIPWarehouse     string
	FGWarehouse      string
	UseMultiLevelBOM bool
}

// Submitted reports whether the order document has been submitted.
func (o Order) Submitted() bool {
	return o.DocStatus == 1
}

// DeriveStatus computes the progress status from produced vs planned qty.
// ProducedQty never exceeds Qty; callers enforce that before saving.
func DeriveStatus(producedQty, qty float64) OrderStatus {
	if producedQty >= qty {
		return OrderStatusCompleted
	}
	return OrderStatusInProcess
}

// ErrOrderNotFound indicates the production order does not exist.
var ErrOrderNotFound = errors.New("manufacturing: production order not found")
