package errcode

// Codes carried by asynchronous notifications (admin event feed):
// - 0: no error
// - 4xxx: recoverable business conditions
// - 5xxx: system errors, the job was aborted
const (
	OK              = 0
	ResourceMissing = 4004
	SystemError     = 5000
	RenderFailed    = 5001
)
