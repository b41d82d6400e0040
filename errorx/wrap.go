package errorx

import "errors"

// From extracts the *Error from err, if any.
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// -------------------- category checks --------------------

func IsSuccess(err error) bool {
	e, ok := From(err)
	return ok && e.Success
}

func IsBiz(err error) bool {
	e, ok := From(err)
	return ok && e.Type.Code == ErrTypeBiz.Code
}

func IsSys(err error) bool {
	e, ok := From(err)
	return ok && e.Type.Code == ErrTypeSys.Code
}

// -------------------- service checks --------------------

func ServiceOf(err error) CodeEntry {
	e, ok := From(err)
	if !ok {
		return ServiceDefault
	}
	return e.Service
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code CodeEntry) bool {
	e, ok := From(err)
	return ok && e.Code.Code == code.Code
}
