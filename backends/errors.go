package backends

import (
	"errors"
	"fmt"
)

// Operation identifies the filesystem operation family a failure belongs to
type Operation string

const (
	OpCheckExistence   Operation = "check_existence"
	OpWrite            Operation = "write"
	OpRead             Operation = "read"
	OpDeleteFile       Operation = "delete_file"
	OpDeleteDirectory  Operation = "delete_directory"
	OpCreateDirectory  Operation = "create_directory"
	OpMove             Operation = "move"
	OpCopy             Operation = "copy"
	OpRetrieveMetadata Operation = "retrieve_metadata"
	OpSetVisibility    Operation = "set_visibility"
)

// Metadata kinds reported by UnableToRetrieveMetadata
const (
	MetadataLastModified = "last_modified"
	MetadataFileSize     = "file_size"
	MetadataMimeType     = "mime_type"
	MetadataVisibility   = "visibility"
	MetadataListing      = "listing"
	MetadataAttributes   = "attributes"
	MetadataExistence    = "existence"
)

// Common filesystem errors
var (
	ErrVisibilityNotSupported = errors.New("visibility controls are not supported")
	ErrListingConsumed        = errors.New("directory listing already consumed")
	ErrBackendNotEnabled      = errors.New("backend not enabled")
)

// OperationError is the failure returned by every Filesystem operation
type OperationError struct {
	Op          Operation
	Location    string
	Destination string // set for move and copy
	Metadata    string // set for retrieve_metadata
	Reason      string
	Err         error
}

func (e *OperationError) Error() string {
	var msg string
	switch e.Op {
	case OpCheckExistence:
		msg = fmt.Sprintf("unable to check existence for: %s", e.Location)
	case OpWrite:
		msg = fmt.Sprintf("unable to write file at location: %s", e.Location)
	case OpRead:
		msg = fmt.Sprintf("unable to read file from location: %s", e.Location)
	case OpDeleteFile:
		msg = fmt.Sprintf("unable to delete file located at: %s", e.Location)
	case OpDeleteDirectory:
		msg = fmt.Sprintf("unable to delete directory located at: %s", e.Location)
	case OpCreateDirectory:
		msg = fmt.Sprintf("unable to create a directory at %s", e.Location)
	case OpMove:
		msg = fmt.Sprintf("unable to move file from %s to %s", e.Location, e.Destination)
	case OpCopy:
		msg = fmt.Sprintf("unable to copy file from %s to %s", e.Location, e.Destination)
	case OpRetrieveMetadata:
		msg = fmt.Sprintf("unable to retrieve the %s for file at location: %s", e.Metadata, e.Location)
	case OpSetVisibility:
		msg = fmt.Sprintf("unable to set visibility for file %s", e.Location)
	default:
		msg = fmt.Sprintf("%s failed for %s", e.Op, e.Location)
	}
	if e.Reason != "" {
		msg += ". " + e.Reason
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func newOperationError(op Operation, location, reason string, cause error) *OperationError {
	if reason == "" && cause != nil {
		reason = cause.Error()
	}
	return &OperationError{
		Op:       op,
		Location: location,
		Reason:   reason,
		Err:      cause,
	}
}

// UnableToCheckExistence creates an existence check failure
func UnableToCheckExistence(path string, cause error) *OperationError {
	return newOperationError(OpCheckExistence, path, "", cause)
}

// UnableToWriteFile creates a write failure
func UnableToWriteFile(path, reason string, cause error) *OperationError {
	return newOperationError(OpWrite, path, reason, cause)
}

// UnableToReadFile creates a read failure
func UnableToReadFile(path, reason string, cause error) *OperationError {
	return newOperationError(OpRead, path, reason, cause)
}

// UnableToDeleteFile creates a file deletion failure
func UnableToDeleteFile(path, reason string, cause error) *OperationError {
	return newOperationError(OpDeleteFile, path, reason, cause)
}

// UnableToDeleteDirectory creates a directory deletion failure
func UnableToDeleteDirectory(path, reason string, cause error) *OperationError {
	return newOperationError(OpDeleteDirectory, path, reason, cause)
}

// UnableToCreateDirectory creates a directory creation failure
func UnableToCreateDirectory(path, reason string, cause error) *OperationError {
	return newOperationError(OpCreateDirectory, path, reason, cause)
}

// UnableToSetVisibility creates a visibility failure
func UnableToSetVisibility(path, reason string, cause error) *OperationError {
	return newOperationError(OpSetVisibility, path, reason, cause)
}

// UnableToRetrieveMetadata creates a metadata failure for the given metadata kind
func UnableToRetrieveMetadata(path, kind, reason string, cause error) *OperationError {
	e := newOperationError(OpRetrieveMetadata, path, reason, cause)
	e.Metadata = kind
	return e
}

// UnableToMoveFile creates a move failure carrying both locations
func UnableToMoveFile(source, destination string, cause error) *OperationError {
	e := newOperationError(OpMove, source, "", cause)
	e.Destination = destination
	return e
}

// UnableToCopyFile creates a copy failure carrying both locations
func UnableToCopyFile(source, destination string, cause error) *OperationError {
	e := newOperationError(OpCopy, source, "", cause)
	e.Destination = destination
	return e
}

// IsOperation reports whether err is an OperationError for op
func IsOperation(err error, op Operation) bool {
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		return false
	}
	return opErr.Op == op
}

// AsOperationError extracts the OperationError from err, if any
func AsOperationError(err error) (*OperationError, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}
