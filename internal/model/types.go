package model

// ErrorCode classifies the terminal outcome of a render job. The integer
// values are part of the callback contract and must not be renumbered.
type ErrorCode int

const (
	Success       ErrorCode = 0
	SubmitError   ErrorCode = 1
	StoreError    ErrorCode = 2
	RetrieveError ErrorCode = 3
	UnknownError  ErrorCode = 10
)

func (e ErrorCode) String() string {
	switch e {
	case Success:
		return "SUCCESS"
	case SubmitError:
		return "SUBMIT_ERROR"
	case StoreError:
		return "STORE_ERROR"
	case RetrieveError:
		return "RETRIEVE_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// JobRecord is one row per submitted render job. Optional fields hold the
// empty string until the corresponding pipeline step has run; the store
// persists them as NULL and callback payloads omit them while empty.
type JobRecord struct {
	ID int64 `json:"id"`

	// ClientTaskID is the caller-supplied correlation key. Immutable.
	ClientTaskID string `json:"client_task_id"`

	// ClientCallbackURL is the fully resolved URL the result is POSTed to.
	ClientCallbackURL string `json:"client_callback_url"`

	// WorkerTaskID is assigned by the worker node at submission time and
	// correlates completion events back to this record. Unique once set.
	WorkerTaskID string `json:"worker_task_id,omitempty"`

	// ArtifactPath is the output path as known to the worker node.
	ArtifactPath string `json:"artifact_path,omitempty"`

	// DurableKey is the object storage key once the durable upload succeeded.
	DurableKey string `json:"durable_key,omitempty"`

	ErrorCode ErrorCode `json:"error_code"`
}
