package logx

const (
	TagUndef       = "undef"
	TagRequestIn   = "request_in"
	TagRequestOut  = "request_out"
	TagHttpSuccess = "http_success"
	TagHttpFailure = "http_failure"

	TagReportIn     = "report_in"
	TagReportOut    = "report_out"
	TagReportDrop   = "report_drop"
	TagSinkFailure  = "sink_failure"
	TagStoreSuccess = "store_success"
	TagStoreFailure = "store_failure"
	TagIndex        = "index"
	TagServer       = "server"

	Cost = "cost"
	Msg  = "msg"
	Err  = "err"

	Remote   = "remote"
	Method   = "method"
	URL      = "url"
	Path     = "path"
	Query    = "query"
	Request  = "request"
	Body     = "body"
	Response = "response"
	Status   = "status"

	Attempt     = "attempt"
	Attempts    = "attempts"
	MaxAttempts = "max_attempts"

	TaskID   = "task_id"
	OpID     = "op_id"
	Source   = "source"
	Reporter = "reporter"
	Addr     = "addr"
	Count    = "count"
	Bytes    = "bytes"
)
