package cookie

import "errors"

var (
	ErrInvalidCookie    = errors.New("cookie: invalid")
	ErrCookieExpired    = errors.New("cookie: expired")
	ErrCookieFromFuture = errors.New("cookie: issue time is in the future")
)
