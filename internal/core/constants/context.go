package constants

const (
	ContextRequestIDKey = "request_id" // generated per HTTP request, threaded through logs

	HeaderXRequestID = "X-Request-Id"
	HeaderContentType = "Content-Type"
	HeaderAccept      = "Accept"
)
