package keys

import "errors"

var (
	ErrInvalidKey          = errors.New("keys: invalid key")
	ErrMalformedSignature  = errors.New("keys: malformed signature")
	ErrSignatureMismatch   = errors.New("keys: signature does not match payload")
	ErrUnsupportedScheme   = errors.New("keys: unsupported scheme")
	ErrInvalidMnemonic     = errors.New("keys: invalid mnemonic")
	ErrMnemonicUnsupported = errors.New("keys: mnemonic backup requires an ed25519 key")
)
