package chat

import "errors"

// Account and channel failures shown inline on the current screen. Store
// transport failures are wrapped instead and carry the underlying cause.
var (
	ErrDuplicatePIN       = errors.New("pin already exists")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid pin or password")
	ErrSelfChat           = errors.New("cannot chat with yourself")
)
