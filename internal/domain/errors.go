package domain

// ErrorKind classifies why a job ended up failed or cancelled.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindInvalidSource     ErrorKind = "invalid_source"
	ErrorKindUnavailableFormat ErrorKind = "unavailable_format"
	ErrorKindNetworkFailure    ErrorKind = "network_failure"
	ErrorKindStorageFailure    ErrorKind = "storage_failure"
	ErrorKindEngineFailure     ErrorKind = "engine_failure"
	ErrorKindCancelled         ErrorKind = "cancelled"
)

// Retryable reports whether the failure is transient and worth another
// attempt before the job is marked failed.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindNetworkFailure
}
