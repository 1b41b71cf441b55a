package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrUnknownCommand = "E_UNKNOWN_COMMAND"
	ErrNoPermission   = "E_NO_PERMISSION"
	ErrNoResource     = "E_NO_RESOURCE"
	ErrInternal       = "E_INTERNAL"

	// ErrBusy is retryable: resend with a fresh player snapshot.
	ErrBusy = "E_BUSY"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownCommand:  {},
	ErrNoPermission:    {},
	ErrNoResource:      {},
	ErrInternal:        {},
	ErrBusy:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
