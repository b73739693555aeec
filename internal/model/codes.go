package model

// Result codes carried in the result field. Codes other than these pass
// through unchanged from the component that decided the outcome.
const (
	ResultOK                   = 0
	ResultInternalError        = 1
	ResultBadValue             = 2
	ResultUnauthorized         = 13
	ResultAuthenticationFailed = 18
)
