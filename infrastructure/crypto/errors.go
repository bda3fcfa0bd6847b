package crypto

import "errors"

var ErrAuthFailed = errors.New("crypto: authentication failed")
