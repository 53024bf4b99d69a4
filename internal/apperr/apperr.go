// Package apperr defines the error kinds surfaced by the verification flow.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of verification failure.
type Kind string

const (
	KindCameraUnavailable     Kind = "camera_unavailable"
	KindNoFaceDetected        Kind = "no_face_detected"
	KindInvalidReferenceImage Kind = "invalid_reference_image"
	KindMismatch              Kind = "mismatch"
	KindMissingID             Kind = "missing_id"
	KindRecordNotFound        Kind = "record_not_found"
	KindRecordInactive        Kind = "record_inactive"
	KindNetworkFailure        Kind = "network_failure"
	KindUploadFailure         Kind = "upload_failure"
)

// Sentinels for errors.Is checks against an *Error of the same kind.
var (
	CameraUnavailable     = &Error{Kind: KindCameraUnavailable}
	NoFaceDetected        = &Error{Kind: KindNoFaceDetected}
	InvalidReferenceImage = &Error{Kind: KindInvalidReferenceImage}
	Mismatch              = &Error{Kind: KindMismatch}
	MissingID             = &Error{Kind: KindMissingID}
	RecordNotFound        = &Error{Kind: KindRecordNotFound}
	RecordInactive        = &Error{Kind: KindRecordInactive}
	NetworkFailure        = &Error{Kind: KindNetworkFailure}
	UploadFailure         = &Error{Kind: KindUploadFailure}
)

var messages = map[Kind]string{
	KindCameraUnavailable:     "Camera unavailable. Check the device and permissions, then retry",
	KindNoFaceDetected:        "No face detected. Position your face in front of the camera",
	KindInvalidReferenceImage: "The stored reference photo does not contain a detectable face",
	KindMismatch:              "Face does not match the registered admin",
	KindMissingID:             "No ID provided",
	KindRecordNotFound:        "ID record not found",
	KindRecordInactive:        "ID is not active",
	KindNetworkFailure:        "Network error. Please retry",
	KindUploadFailure:         "Upload failed",
}

var statusCodes = map[Kind]int{
	KindCameraUnavailable:     http.StatusServiceUnavailable,
	KindNoFaceDetected:        http.StatusUnprocessableEntity,
	KindInvalidReferenceImage: http.StatusUnprocessableEntity,
	KindMismatch:              http.StatusUnauthorized,
	KindMissingID:             http.StatusBadRequest,
	KindRecordNotFound:        http.StatusNotFound,
	KindRecordInactive:        http.StatusForbidden,
	KindNetworkFailure:        http.StatusBadGateway,
	KindUploadFailure:         http.StatusBadGateway,
}

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New builds an error of the given kind. An empty message falls back to the
// default text for the kind.
func New(kind Kind, message string, err error) *Error {
	if message == "" {
		message = DefaultMessage(kind)
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrap classifies err under kind with the default message.
func Wrap(kind Kind, err error) *Error {
	return New(kind, "", err)
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = DefaultMessage(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so sentinels match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// DefaultMessage returns the user-facing text for a kind.
func DefaultMessage(kind Kind) string {
	if msg, ok := messages[kind]; ok {
		return msg
	}
	return "Verification failed"
}

// KindOf extracts the kind of err, or "" if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the user-facing message of a classified error, or the
// raw error text otherwise.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return DefaultMessage(e.Kind)
	}
	return err.Error()
}

// HTTPStatus maps err to a response code.
func HTTPStatus(err error) int {
	if code, ok := statusCodes[KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}
