/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnsupportedEvent indicates that a WebSocket frame carried an unknown event type.
	ErrUnsupportedEvent = 1008
)

// 2xxx: Room and Content Business Logic Errors
const (
	ErrRoomNotFound       = 2101
	ErrRoomClosed         = 2102
	ErrPasswordRequired   = 2103
	ErrRoomPasswordWrong  = 2104
	ErrNotInRoom          = 2105
	ErrRoomNameInvalid    = 2106
	ErrRoomCodeExhausted  = 2107
	ErrMessageNotFound    = 2201
	ErrReplyTargetMissing = 2202
	ErrMessageEmpty       = 2203

	// ErrMessageContentTooLong indicates that the user's message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2204

	ErrCaptionTooLong       = 2205
	ErrInvalidBilibiliID    = 2206
	ErrMarkdownTitleTooLong = 2207
	ErrMarkdownBodyTooLong  = 2208
	ErrUnsupportedVariant   = 2209
	ErrImageRefMissing      = 2210
	ErrFileNotFound         = 2301
	ErrFileExpired          = 2302
	ErrFileSizeTooLarge     = 2303
	ErrFileTypeInvalid      = 2304
	ErrFileAlreadyAttached  = 2305
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3002

	// ErrSessionReplaced indicates that the connection was superseded by a newer one for the same principal.
	ErrSessionReplaced = 3004

	ErrMissingCredential       = 3101
	ErrInvalidCredential       = 3102
	ErrPrincipalNotFound       = 3103
	ErrAnonymousSessionExpired = 3104

	// ErrForbidden indicates that the actor's moderation role is insufficient for the action.
	ErrForbidden = 3201

	// ErrMuted indicates that the sender currently has an active mute in the room.
	ErrMuted = 3202

	ErrCannotTargetCreator = 3203
	ErrCannotTargetSelf    = 3204
	ErrInvalidMute         = 3205
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrIdentifierConflict indicates that bounded identifier-generation retries were exhausted.
	ErrIdentifierConflict = 5001

	// ErrStoreUnavailable indicates an I/O failure of the durable store.
	ErrStoreUnavailable = 5002

	ErrFileStorageFailed = 5003
)
