package errx

import "net/http"

// Type is the category of an error. It decides the default HTTP status and
// whether a job failing with it is worth retrying.
type Type string

const (
	TypeInternal      Type = "INTERNAL"
	TypeValidation    Type = "VALIDATION"
	TypeAuthorization Type = "AUTHORIZATION"
	TypeNotFound      Type = "NOT_FOUND"
	TypeConflict      Type = "CONFLICT"
	TypeBusiness      Type = "BUSINESS"
	TypeExternal      Type = "EXTERNAL"
)

var defaultStatus = map[Type]int{
	TypeValidation:    http.StatusBadRequest,
	TypeAuthorization: http.StatusUnauthorized,
	TypeNotFound:      http.StatusNotFound,
	TypeConflict:      http.StatusConflict,
	TypeBusiness:      http.StatusUnprocessableEntity,
	TypeExternal:      http.StatusBadGateway,
}

func (t Type) String() string { return string(t) }

// HTTPStatus is the status used for uncoded errors of this type.
func (t Type) HTTPStatus() int {
	if s, ok := defaultStatus[t]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Terminal reports whether errors of this type cannot succeed on a retry.
func (t Type) Terminal() bool {
	return t == TypeValidation || t == TypeAuthorization || t == TypeBusiness
}
