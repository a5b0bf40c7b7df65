package capture

import "github.com/rbright/inkwell/internal/recognition"

// ErrorKind is the controller-level failure taxonomy surfaced in snapshots.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindNotSupported       ErrorKind = "not-supported"
	KindPermissionDenied   ErrorKind = "permission-denied"
	KindNetworkUnavailable ErrorKind = "network-unavailable"
	KindEngineNetwork      ErrorKind = "network"
	KindNoSpeech           ErrorKind = "no-speech"
	KindNoMicrophone       ErrorKind = "no-microphone"
	KindServiceUnavailable ErrorKind = "service-unavailable"
	KindAborted            ErrorKind = "aborted"
	KindConnectionFailed   ErrorKind = "connection-failed"
	KindUnknown            ErrorKind = "unknown"
)

// policy is the controller reaction to one classified engine error.
type policy int

const (
	policyFatal policy = iota + 1
	policyRetry
	policySilentRestart
	policySilentStop
)

// classify maps an engine error code to its kind and reaction.
func classify(code recognition.ErrorCode) (ErrorKind, policy) {
	switch code {
	case recognition.ErrorNetwork:
		return KindEngineNetwork, policyRetry
	case recognition.ErrorNoSpeech:
		return KindNoSpeech, policySilentRestart
	case recognition.ErrorNotAllowed, recognition.ErrorPermissionDenied:
		return KindPermissionDenied, policyFatal
	case recognition.ErrorAudioCapture:
		return KindNoMicrophone, policyFatal
	case recognition.ErrorServiceNotAllowed:
		return KindServiceUnavailable, policyFatal
	case recognition.ErrorAborted:
		return KindAborted, policySilentStop
	default:
		return KindUnknown, policyFatal
	}
}

// engineMessage is the user-facing description for an engine error code.
func engineMessage(code recognition.ErrorCode) string {
	switch code {
	case recognition.ErrorNetwork:
		return "Network error. Please check your internet connection and try again."
	case recognition.ErrorNotAllowed, recognition.ErrorPermissionDenied:
		return "Microphone access was denied. Please check your permissions."
	case recognition.ErrorAborted:
		return "Speech recognition was aborted."
	case recognition.ErrorAudioCapture:
		return "No microphone was detected or it's not working properly."
	case recognition.ErrorNoSpeech:
		return "No speech was detected. Please try speaking again."
	case recognition.ErrorServiceNotAllowed:
		return "Speech recognition service is not allowed on this device."
	case recognition.ErrorStart:
		return "Could not start speech recognition. Please try again."
	default:
		return "There was an error with speech recognition."
	}
}
