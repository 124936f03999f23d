package security

import "context"

// SealToken encrypts a credential string. Empty values and a nil cipher pass
// through unchanged.
func SealToken(ctx context.Context, c TokenCipher, value string) (string, error) {
	if c == nil || value == "" {
		return value, nil
	}
	sealed, err := c.Encrypt(ctx, []byte(value))
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}

// OpenToken reverses SealToken. Values stored before encryption was enabled
// carry no envelope prefix and are returned as-is.
func OpenToken(ctx context.Context, c TokenCipher, value string) (string, error) {
	if c == nil || !IsEnvelope([]byte(value)) {
		return value, nil
	}
	opened, err := c.Decrypt(ctx, []byte(value))
	if err != nil {
		return "", err
	}
	return string(opened), nil
}
