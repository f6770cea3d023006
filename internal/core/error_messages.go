package core

// error_messages.go maps technical errors to messages a user can act on.
//
// Codes by category:
//
//	SHT001  sheet not found in the workbook
//	SHT002  goal sheet header ("Cupos") not found in the scanned rows
//	SHT003  bucket not found (nothing stored under that name yet)
//	FILE001 file too large
//	FILE002 unsupported file type
//	FILE003 workbook could not be read
//	FILE004 no file provided
//	FILE005 empty file
//	FILE006 file not found
//	DB001   store unreachable
//	DB002   store connection interrupted
//	DB003   store operation timed out
//	DB004   invalid bucket name
//	DB005   write rejected by the store
//	DB006   malformed query
//	UPL001  system busy
//	UPL002  request cancelled
//	UPL003  request timed out
//	UPL004  invalid file name
//	RATE001 rate limited
//	ERR000  anything else; check the logs for the technical error
//
// Sentinel errors are matched first with errors.Is so wrapping never hides
// them. Remaining errors are matched by case-insensitive substring, first
// match wins, so specific patterns go before general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/extract"
	"github.com/JonMunkholm/sheetsync/internal/store"
	"github.com/JonMunkholm/sheetsync/internal/workbook"
)

// UserMessage is what a client is shown for an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorSentinel struct {
	target error
	msg    UserMessage
}

var errorSentinels = []errorSentinel{
	{extract.ErrSheetNotFound, UserMessage{"Sheet not found in the workbook", "Check the sheet name against the file's sheet list", "SHT001"}},
	{extract.ErrNoHeader, UserMessage{"No header row with \"Cupos\" near the top of the sheet", "Make sure this is a goal sheet and its header was not moved further down", "SHT002"}},
	{store.ErrBucketNotFound, UserMessage{"No data stored under that name", "Upload the workbook first, then list buckets", "SHT003"}},
	{ErrFileTooLarge, UserMessage{"File exceeds the maximum upload size", "Remove unused sheets or upload a smaller file", "FILE001"}},
	{ErrUnsupportedFile, UserMessage{"File type is not supported", "Upload an .xlsb or .xlsx workbook", "FILE002"}},
	{workbook.ErrUnsupportedFormat, UserMessage{"File type is not supported", "Upload an .xlsb or .xlsx workbook", "FILE002"}},
	{ErrUnreadableWorkbook, UserMessage{"The workbook could not be read", "Open the file in Excel, save it again and retry", "FILE003"}},
	{ErrNoFile, UserMessage{"No file was provided", "Attach the workbook in the \"file\" field", "FILE004"}},
	{ErrEmptyFile, UserMessage{"The uploaded file is empty", "Check the file and upload it again", "FILE005"}},
	{ErrFileNotFound, UserMessage{"File not found", "List files to get a current id", "FILE006"}},
	{store.ErrInvalidBucket, UserMessage{"Invalid bucket name", "Use the names returned by the bucket list", "DB004"}},
	{ErrTooManyUploads, UserMessage{"System is busy processing other workbooks", "Wait a moment and try again", "UPL001"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Try again", "UPL002"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Try again with a smaller file", "UPL003"}},
	{ErrInvalidFilename, UserMessage{"Invalid file name", "Use the file name returned by the export", "UPL004"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"connection refused", UserMessage{"Unable to reach the database", "Try again in a few moments", "DB001"}},
	{"server selection error", UserMessage{"Unable to reach the database", "Try again in a few moments", "DB001"}},
	{"no reachable servers", UserMessage{"Unable to reach the database", "Try again in a few moments", "DB001"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Try again", "DB002"}},
	{"timeout", UserMessage{"Database operation timed out", "Try again later", "DB003"}},
	{"duplicate key", UserMessage{"The store rejected the records", "Check the logs for the rejected field", "DB005"}},
	{"document is too large", UserMessage{"The store rejected the records", "Split the sheet or remove unused columns", "DB005"}},
	{"group_by is required", UserMessage{"group_by is required", "Pass the field to group by", "DB006"}},
	{"rate limit", UserMessage{"Too many requests", "Wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Try again or contact support",
	Code:    "ERR000",
}

// MapError converts err to a user-facing message. It returns the zero
// message for a nil error and ERR000 when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, s := range errorSentinels {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
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
	return err != nil && MapError(err).Code != defaultMessage.Code
}
