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
)

// 2xxx: Room, Message and Location Errors
const (
	// ErrRoomNotFound indicates that the addressed chat room does not exist.
	ErrRoomNotFound = 2103

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageContentEmpty indicates that a chat message carried no content.
	ErrMessageContentEmpty = 2202

	// ErrMessageTypeInvalid indicates an unknown chat message type.
	ErrMessageTypeInvalid = 2203

	// ErrFileSizeTooLarge indicates that an attachment exceeds the size limit.
	ErrFileSizeTooLarge = 2301

	// ErrAttachmentKeyInvalid indicates that an attachment key does not belong to the room.
	ErrAttachmentKeyInvalid = 2302

	// ErrLocationInvalid indicates coordinates outside the valid latitude/longitude range.
	ErrLocationInvalid = 2401

	// ErrLocationNotFound indicates that no location was recorded for the requested user.
	ErrLocationNotFound = 2402
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3002

	// ErrUnauthorized indicates the request has no authenticated principal.
	ErrUnauthorized = 3005

	// ErrTokenMissing indicates that no bearer token was presented.
	ErrTokenMissing = 3006

	// ErrTokenInvalid indicates a token with a bad signature, bad format, wrong kind or past expiry.
	ErrTokenInvalid = 3007

	// ErrTokenRevoked indicates a well-formed token that has been revoked.
	ErrTokenRevoked = 3008

	// ErrNotRoomParticipant indicates the principal is not an active participant of the room.
	ErrNotRoomParticipant = 3009

	// ErrForbidden indicates the principal lacks the role required by the operation.
	ErrForbidden = 3010

	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = 3011

	// ErrInvalidPassword indicates a password outside the allowed length.
	ErrInvalidPassword = 3012

	// ErrUserAlreadyExists indicates the email is already registered.
	ErrUserAlreadyExists = 3013

	// ErrInvalidCredentials indicates a login with unknown email or wrong password.
	ErrInvalidCredentials = 3014

	// ErrUserNotFound indicates the account does not exist or was withdrawn.
	ErrUserNotFound = 3015
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrPersistenceFailed indicates the durable store rejected a write or read.
	ErrPersistenceFailed = 5001

	// ErrBusPublishFailed indicates the message bus did not accept a payload.
	ErrBusPublishFailed = 5002

	// ErrMalformedEnvelope indicates a bus payload that could not be decoded or routed.
	ErrMalformedEnvelope = 5003

	// ErrFileStorageFailed indicates that the object storage could not presign a request.
	ErrFileStorageFailed = 5004
)
