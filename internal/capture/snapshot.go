package capture

import "github.com/rbright/inkwell/internal/fsm"

// Permission is the tri-state microphone access record.
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// State is the tagged controller state. Attempt is set while retrying and
// Failure while failed.
type State struct {
	Phase   fsm.Phase `json:"phase"`
	Attempt int       `json:"attempt,omitempty"`
	Failure ErrorKind `json:"failure,omitempty"`
}

// Snapshot is a read-only copy of the observable controller state.
type Snapshot struct {
	State

	SessionID             uint64     `json:"session_id"`
	IsListening           bool       `json:"is_listening"`
	Transcript            string     `json:"transcript"`
	Pending               string     `json:"pending,omitempty"`
	Error                 ErrorKind  `json:"error,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	MicrophonePermission  Permission `json:"microphone_permission"`
	IsOnline              bool       `json:"is_online"`
	RetryingCount         int        `json:"retrying_count"`
	HasRecognitionSupport bool       `json:"has_recognition_support"`
}
