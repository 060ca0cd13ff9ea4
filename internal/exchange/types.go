package exchange

import "fmt"

// Private API method names.
const (
	MethodCreateOrder     = "private/create-order"
	MethodCreateOrderList = "private/create-order-list"
	MethodCancelOrder     = "private/cancel-order"
	MethodGetOrderDetail  = "private/get-order-detail"
	MethodGetOpenOrders   = "private/get-open-orders"
)

// Response codes with protocol meaning to the execution layer. Both may
// arrive as an HTTP error status or inside an HTTP-200 body; the body code
// is authoritative.
const (
	// CodeOK is a successful call.
	CodeOK = 0
	// CodeBadRequest rejects a specific price/quantity/parameter encoding.
	// The execution layer answers it by advancing to the next parameter
	// variant, never by repeating the same shape.
	CodeBadRequest = 10004
	// CodeCreateOrderDisabled means the primary order-creation method is
	// disabled for this account. It triggers exactly one fallback attempt
	// through the batched create-order-list method.
	CodeCreateOrderDisabled = 306
	// CodeInvalidNonce is returned when the request nonce drifts too far.
	CodeInvalidNonce = 10007
)

// APIError is a structured exchange rejection.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Message)
}

// IsFormatRejection reports whether the code means a parameter-encoding
// rejection worth retrying with a different variant.
func IsFormatRejection(code int) bool {
	return code == CodeBadRequest
}

// IsPermissionRejection reports whether the code means the account cannot
// use the primary order-creation method.
func IsPermissionRejection(code int) bool {
	return code == CodeCreateOrderDisabled
}

// OrderAck is the exchange's acknowledgement of a placed order.
type OrderAck struct {
	OrderID       string
	ClientOrderID string
}

// OrderDetail is the subset of order state consumed by status sync.
type OrderDetail struct {
	OrderID      string
	Status       string
	FilledQty    float64
	AvgPrice     float64
	UpdateTimeMs int64
}
