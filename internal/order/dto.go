package order

import (
	"slices"

	"github.com/go-playground/validator/v10"
)

// UpdateDeliveryStatusRequest payload for the admin delivery update.
// swagger:model UpdateDeliveryStatusRequest
type UpdateDeliveryStatusRequest struct {
	Status string `json:"status" binding:"required,deliverystatus" example:"Shipped"`
}

// RefundRequest payload. The order id rides in the URL.
// swagger:model RefundRequest
type RefundRequest struct {
	Reason string `json:"reason,omitempty" example:"customer request"`
}

// DeliveryStatusValidation restricts the admin update to the statuses an
// administrator may set; Cancelled is reserved for the refund path. Register
// it on gin's validator engine under the tag "deliverystatus".
func DeliveryStatusValidation(fl validator.FieldLevel) bool {
	return slices.Contains(AdminDeliveryStatuses, fl.Field().String())
}
