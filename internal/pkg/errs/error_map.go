/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses, WebSocket error frames and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message, the taxonomy kind
// and the HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Kind: KindValidation, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Kind: KindValidation, Message: "Unsupported request format."},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Kind: KindValidation, Message: "Unsupported request format."},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Kind: KindValidation, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Kind: KindValidation, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnsupportedEvent:     {Code: ErrUnsupportedEvent, Kind: KindValidation, Message: "Unsupported event."},

	// 2xxx: Room and Content Business Logic Errors
	ErrRoomNotFound:          {Code: ErrRoomNotFound, Kind: KindNotFound, Message: "Chat room not found.", Status: http.StatusNotFound},
	ErrRoomClosed:            {Code: ErrRoomClosed, Kind: KindNotFound, Message: "This chat room has been closed.", Status: http.StatusGone},
	ErrPasswordRequired:      {Code: ErrPasswordRequired, Kind: KindAuthorization, Message: "This chat room requires a password.", Status: http.StatusForbidden},
	ErrRoomPasswordWrong:     {Code: ErrRoomPasswordWrong, Kind: KindAuthorization, Message: "Incorrect room password.", Status: http.StatusForbidden},
	ErrNotInRoom:             {Code: ErrNotInRoom, Kind: KindAuthorization, Message: "You have not joined this chat room.", Status: http.StatusForbidden},
	ErrRoomNameInvalid:       {Code: ErrRoomNameInvalid, Kind: KindValidation, Message: "Room name must be between 1 and %d characters."},
	ErrRoomCodeExhausted:     {Code: ErrRoomCodeExhausted, Kind: KindConflict, Message: "Could not allocate a room code. Please try again.", Status: http.StatusConflict},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Kind: KindNotFound, Message: "Message not found.", Status: http.StatusNotFound},
	ErrReplyTargetMissing:    {Code: ErrReplyTargetMissing, Kind: KindNotFound, Message: "The message you are replying to no longer exists."},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Kind: KindValidation, Message: "Message cannot be empty."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Kind: KindValidation, Message: "Message is too long (max %d characters)."},
	ErrCaptionTooLong:        {Code: ErrCaptionTooLong, Kind: KindValidation, Message: "Image caption is too long (max %d characters)."},
	ErrInvalidBilibiliID:     {Code: ErrInvalidBilibiliID, Kind: KindValidation, Message: "Invalid Bilibili video id."},
	ErrMarkdownTitleTooLong:  {Code: ErrMarkdownTitleTooLong, Kind: KindValidation, Message: "Markdown title is too long (max %d characters)."},
	ErrMarkdownBodyTooLong:   {Code: ErrMarkdownBodyTooLong, Kind: KindValidation, Message: "Markdown document is too long (max %d characters)."},
	ErrUnsupportedVariant:    {Code: ErrUnsupportedVariant, Kind: KindValidation, Message: "Unsupported message type."},
	ErrImageRefMissing:       {Code: ErrImageRefMissing, Kind: KindValidation, Message: "Image reference is required."},
	ErrFileNotFound:          {Code: ErrFileNotFound, Kind: KindNotFound, Message: "File not found.", Status: http.StatusNotFound},
	ErrFileExpired:           {Code: ErrFileExpired, Kind: KindValidation, Message: "The uploaded file has expired. Please upload it again."},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Kind: KindValidation, Message: "File is too large."},
	ErrFileTypeInvalid:       {Code: ErrFileTypeInvalid, Kind: KindValidation, Message: "File type is not allowed."},
	ErrFileAlreadyAttached:   {Code: ErrFileAlreadyAttached, Kind: KindConflict, Message: "This file has already been sent."},

	// 3xxx: User, Session, and Security Errors
	ErrPowChallengeRequired:    {Code: ErrPowChallengeRequired, Kind: KindAuth, Message: "Verification required. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInvalid:     {Code: ErrPowChallengeInvalid, Kind: KindAuth, Message: "Verification failed. Please try again.", Status: http.StatusForbidden},
	ErrSessionReplaced:         {Code: ErrSessionReplaced, Kind: KindAuth, Message: "You joined this room from another connection."},
	ErrMissingCredential:       {Code: ErrMissingCredential, Kind: KindAuth, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrInvalidCredential:       {Code: ErrInvalidCredential, Kind: KindAuth, Message: "Your session is invalid. Please sign in again.", Status: http.StatusUnauthorized},
	ErrPrincipalNotFound:       {Code: ErrPrincipalNotFound, Kind: KindAuth, Message: "Account not found.", Status: http.StatusUnauthorized},
	ErrAnonymousSessionExpired: {Code: ErrAnonymousSessionExpired, Kind: KindAuth, Message: "Your guest session has expired.", Status: http.StatusUnauthorized},
	ErrForbidden:               {Code: ErrForbidden, Kind: KindAuthorization, Message: "You do not have permission to do that.", Status: http.StatusForbidden},
	ErrMuted:                   {Code: ErrMuted, Kind: KindAuthorization, Message: "You are muted in this room.", Status: http.StatusForbidden},
	ErrCannotTargetCreator:     {Code: ErrCannotTargetCreator, Kind: KindAuthorization, Message: "The room creator cannot be targeted.", Status: http.StatusForbidden},
	ErrCannotTargetSelf:        {Code: ErrCannotTargetSelf, Kind: KindAuthorization, Message: "You cannot target yourself.", Status: http.StatusForbidden},
	ErrInvalidMute:             {Code: ErrInvalidMute, Kind: KindValidation, Message: "Invalid mute duration or reason."},

	// 5xxx: Internal System Errors
	ErrUnknown:            {Code: ErrUnknown, Kind: KindInternal, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrIdentifierConflict: {Code: ErrIdentifierConflict, Kind: KindConflict, Message: "Could not allocate an identifier. Please try again.", Status: http.StatusConflict},
	ErrStoreUnavailable:   {Code: ErrStoreUnavailable, Kind: KindTransientStore, Message: "Storage is temporarily unavailable. Please try again.", Status: http.StatusServiceUnavailable},
	ErrFileStorageFailed:  {Code: ErrFileStorageFailed, Kind: KindInternal, Message: "File storage failed. Please try again.", Status: http.StatusBadGateway},
}
