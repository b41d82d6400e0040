package errorx

import "net/http"

// HTTPStatus maps err to the status the collector answers with. Unknown
// errors and system failures are 500.
func HTTPStatus(err error) int {
	e, ok := From(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Code.Code {
	case ErrTaskNotFound.Code, ErrNotFound.Code:
		return http.StatusNotFound
	case ErrRateLimited.Code:
		return http.StatusTooManyRequests
	case ErrMalformedReport.Code, ErrMalformedMetadata.Code, ErrBadQuery.Code:
		return http.StatusBadRequest
	}
	if e.Type.Code == ErrTypeBiz.Code {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
