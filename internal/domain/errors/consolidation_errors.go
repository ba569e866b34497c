package errors

// Bridge provider sentinel errors. Providers return these to signal
// conditions the aggregator filters on rather than escalating.
var (
	// ErrAmountTooLow indicates the transfer amount is below the provider's
	// economic minimum; the provider is skipped, not failed
	ErrAmountTooLow = &DomainError{Err: ErrInvalidInput, Code: "AMOUNT_TOO_LOW", Message: "amount too low to bridge economically"}

	// ErrRouteNotSupported indicates the provider offers no route for the pair
	ErrRouteNotSupported = &DomainError{Err: ErrNotFound, Code: "ROUTE_NOT_SUPPORTED", Message: "route not supported by provider"}
)

// QuoteExpiredError indicates a transaction build was attempted against a
// quote identifier whose cached context is gone; the caller must re-quote
func QuoteExpiredError(quoteID string) *DomainError {
	return &DomainError{
		Err:     ErrExpired,
		Code:    "QUOTE_EXPIRED",
		Message: "quote expired or not found, please request a new quote",
		Details: map[string]interface{}{"quote_id": quoteID},
	}
}

// PlanNotFoundError indicates the plan never existed or its TTL elapsed
func PlanNotFoundError(planID string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    "PLAN_NOT_FOUND",
		Message: "consolidation plan not found or expired",
		Details: map[string]interface{}{"plan_id": planID},
	}
}

// PlanExpiredError indicates the plan's own expiry timestamp has passed
func PlanExpiredError(planID string) *DomainError {
	return &DomainError{
		Err:     ErrExpired,
		Code:    "PLAN_EXPIRED",
		Message: "consolidation plan has expired, please request a new quote",
		Details: map[string]interface{}{"plan_id": planID},
	}
}

// UserMismatchError indicates the requester does not own the plan
func UserMismatchError(planID string) *DomainError {
	return &DomainError{
		Err:     ErrForbidden,
		Code:    "USER_MISMATCH",
		Message: "plan does not belong to this user",
		Details: map[string]interface{}{"plan_id": planID},
	}
}

// NoViableRoutesError indicates zero chains produced a usable route
func NoViableRoutesError() *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    "NO_VIABLE_ROUTES",
		Message: "No viable consolidation routes found",
	}
}
