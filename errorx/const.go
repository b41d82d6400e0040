package errorx

// CodeEntry is an error code plus its default message.
// Define codes here and refer to them by variable name, never by bare number.
type CodeEntry struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// -------------------- service kinds --------------------

var (
	ServiceTypeDefault = CodeEntry{Code: 1, Message: "unknown service type"}
	ServiceTypeBasic   = CodeEntry{Code: 4, Message: "component"}
	ServiceTypeService = CodeEntry{Code: 5, Message: "service"}
)

// -------------------- services --------------------

var (
	ServiceDefault   = CodeEntry{Code: 1, Message: "unknown service"}
	ServiceStore     = CodeEntry{Code: 4, Message: "store"}
	ServiceCollector = CodeEntry{Code: 5, Message: "collector"}
	ServiceReporter  = CodeEntry{Code: 6, Message: "reporter"}
	ServiceIndex     = CodeEntry{Code: 7, Message: "index"}
	ServiceConfig    = CodeEntry{Code: 8, Message: "config"}
)

// -------------------- error categories --------------------

var (
	ErrTypeSys = CodeEntry{Code: 4, Message: "system error"}
	ErrTypeBiz = CodeEntry{Code: 5, Message: "business error"}
)

// -------------------- results --------------------

var (
	Success = CodeEntry{Code: 0, Message: "success"}
	Failed  = CodeEntry{Code: 1, Message: "failed"}
)

// -------------------- domain errors --------------------

var (
	ErrDefault           = CodeEntry{Code: 1000, Message: "unknown error"}
	ErrNotFound          = CodeEntry{Code: 404, Message: "not found"}
	ErrMalformedReport   = CodeEntry{Code: 1101, Message: "malformed report"}
	ErrMalformedMetadata = CodeEntry{Code: 1102, Message: "malformed metadata"}
	ErrTaskNotFound      = CodeEntry{Code: 1103, Message: "task not found"}
	ErrStore             = CodeEntry{Code: 1201, Message: "report store failure"}
	ErrSink              = CodeEntry{Code: 1301, Message: "report sink failure"}
	ErrUnknownReporter   = CodeEntry{Code: 1302, Message: "unknown reporter"}
	ErrHTTPStatus        = CodeEntry{Code: 1303, Message: "unexpected http status"}
	ErrSource            = CodeEntry{Code: 1401, Message: "report source failure"}
	ErrRateLimited       = CodeEntry{Code: 1402, Message: "ingest rate limited"}
	ErrConfig            = CodeEntry{Code: 1501, Message: "invalid configuration"}
	ErrBadQuery          = CodeEntry{Code: 1601, Message: "bad query"}
)
