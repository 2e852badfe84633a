package domain

import "fmt"

// APIError is a machine-readable client error with a fixed code, carried
// through to the response body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError builds an APIError with an HTTP status hint.
func NewAPIError(code, message string, status int) *APIError {
	return &APIError{Code: code, Message: message, Status: status}
}

// Validation failures on the write path.
var (
	ErrInvalidProductType = NewAPIError("invalid_product_type",
		"The product type does not exist.", 400)
	ErrUndeterminedProductType = NewAPIError("unable_to_determine_product_type",
		"Unable to determine product type.", 400)
	ErrProductTypeMismatch = NewAPIError("product_type_mismatch",
		"Product type not found. Enable necessary modules for custom product types.", 400)
	ErrCannotView = NewAPIError("catalogbridge_rest_cannot_view",
		"Sorry, you cannot read this resource.", 401)
	ErrCannotEdit = NewAPIError("catalogbridge_rest_cannot_edit",
		"Sorry, you cannot edit this resource.", 401)
)
