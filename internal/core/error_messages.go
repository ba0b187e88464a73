package core

// # Error Codes Reference
//
// This file maps errors to user-friendly messages with a code that users can
// quote to support. Sentinel errors are matched with errors.Is; a few
// messages that come from outside this package are matched by text.
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Table not found: the id is unknown or the table was released
//	TBL002 - Duplicate id: a table is already registered under this id
//	TBL003 - Invalid id: table ids must be uuids
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - Line out of range: the line number is outside the table
//	ROW002 - Length mismatch: the row has the wrong number of fields
//	ROW003 - Type mismatch: a value does not fit its column type
//	ROW004 - Bad position: insert position is not BEFORE or AFTER
//
// # Query Errors (QRY001-QRY099)
//
//	QRY001 - Invalid page: page and page size must be at least 1
//	QRY002 - Start beyond data: read start is past the end of the table
//	QRY003 - Invalid condition: unknown column, bad operand or bad pattern
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Unreadable: the file could not be opened or decoded
//	FILE002 - Path mismatch: reload or write named a different file
//	FILE003 - Write failed: the file could not be written
//	FILE004 - Invalid headers: missing, empty or duplicate column names
//	FILE005 - Unsupported charset
//	FILE006 - Outside data directory: the path leaves the configured data directory
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - System busy: every load slot is taken
//	LOAD002 - Request cancelled
//	LOAD003 - Request timeout
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
// Returned when nothing matches. Support staff should check the application
// logs for the technical error.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern maps either a sentinel or a lower-case message fragment to a
// user message. The first match wins.
type errorPattern struct {
	sentinel error
	pattern  string
	msg      UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Table Errors (TBL001-TBL003)
	// =========================================================================
	{
		sentinel: ErrTableNotFound,
		msg: UserMessage{
			Message: "Table not found",
			Action:  "The table may have expired. Load the file again",
			Code:    "TBL001",
		},
	},
	{
		sentinel: ErrDuplicateID,
		msg: UserMessage{
			Message: "A table with this id is already loaded",
			Action:  "Use a different id or set reload to replace it",
			Code:    "TBL002",
		},
	},
	{
		sentinel: ErrInvalidID,
		msg: UserMessage{
			Message: "Invalid table id",
			Action:  "Table ids must be UUIDs; leave the id empty to generate one",
			Code:    "TBL003",
		},
	},

	// =========================================================================
	// Row Errors (ROW001-ROW004)
	// =========================================================================
	{
		sentinel: ErrLineOutOfRange,
		msg: UserMessage{
			Message: "Line number is out of range",
			Action:  "Use a line number between 1 and the table size",
			Code:    "ROW001",
		},
	},
	{
		sentinel: ErrLengthMismatch,
		msg: UserMessage{
			Message: "Row has the wrong number of fields",
			Action:  "Check that every row has one value per column",
			Code:    "ROW002",
		},
	},
	{
		sentinel: ErrTypeMismatch,
		msg: UserMessage{
			Message: "A value does not match its column type",
			Action:  "Check numeric columns for text or stray characters",
			Code:    "ROW003",
		},
	},
	{
		sentinel: ErrUnsupportedPosition,
		msg: UserMessage{
			Message: "Unsupported insert position",
			Action:  "Use BEFORE or AFTER",
			Code:    "ROW004",
		},
	},

	// =========================================================================
	// Query Errors (QRY001-QRY003)
	// =========================================================================
	{
		sentinel: ErrInvalidPage,
		msg: UserMessage{
			Message: "Invalid page request",
			Action:  "Page, page size and count must be at least 1",
			Code:    "QRY001",
		},
	},
	{
		sentinel: ErrStartBeyondData,
		msg: UserMessage{
			Message: "Start line is beyond the end of the table",
			Action:  "Read from a lower line number",
			Code:    "QRY002",
		},
	},
	{
		sentinel: ErrInvalidCondition,
		msg: UserMessage{
			Message: "Invalid search condition",
			Action:  "Check column indexes, operators and operand values",
			Code:    "QRY003",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// Charset is matched by text because it surfaces through csvio.
	// =========================================================================
	{
		pattern: "unsupported charset",
		msg: UserMessage{
			Message: "Unsupported character set",
			Action:  "Use a charset name such as utf-8, windows-1252 or euc-kr",
			Code:    "FILE005",
		},
	},
	{
		sentinel: ErrFileUnreadable,
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check that the path exists and the dialect settings match the file",
			Code:    "FILE001",
		},
	},
	{
		sentinel: ErrPathMismatch,
		msg: UserMessage{
			Message: "Path does not match the loaded table",
			Action:  "Reload from the original path, or write to an explicit path",
			Code:    "FILE002",
		},
	},
	{
		sentinel: ErrWriteFailed,
		msg: UserMessage{
			Message: "The file could not be written",
			Action:  "Check that the directory exists and is writable",
			Code:    "FILE003",
		},
	},
	{
		sentinel: ErrInvalidHeaders,
		msg: UserMessage{
			Message: "Invalid column headers",
			Action:  "Provide unique, non-empty column names",
			Code:    "FILE004",
		},
	},
	{
		sentinel: ErrPathOutsideDataDir,
		msg: UserMessage{
			Message: "Path is outside the data directory",
			Action:  "Use a path relative to the data directory",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Load Errors (LOAD001-LOAD003)
	// =========================================================================
	{
		sentinel: ErrTooManyLoads,
		msg: UserMessage{
			Message: "System busy",
			Action:  "Too many files are loading. Please wait a moment and try again",
			Code:    "LOAD001",
		},
	},
	{
		sentinel: context.Canceled,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "LOAD002",
		},
	},
	{
		sentinel: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "LOAD003",
		},
	},

	// =========================================================================
	// Request Errors (REQ001)
	// Raised by the HTTP layer before the service is called.
	// =========================================================================
	{
		pattern: "malformed request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the request body and parameters against the API documentation",
			Code:    "REQ001",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := svc.Read(ctx, id, 1, 10)
//	msg := MapError(err)
//	// msg.Code == "TBL001" when id is unknown
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if ep.sentinel != nil && errors.Is(err, ep.sentinel) {
			return ep.msg
		}
		if ep.pattern != "" && strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
