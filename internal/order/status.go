package order

import "fmt"

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	// StatusCancelled does not release reserved stock by itself; only
	// DeleteOrder and line removals return quantity to the ledger.
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus validates a wire value. Any status may follow any other; no
// transition graph is enforced.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusCreated, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}
