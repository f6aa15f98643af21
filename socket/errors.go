package socket

import "errors"

var (
	ErrClosed      = errors.New("socket: closed")
	ErrNameTooLong = errors.New("socket: interface name too long")
	ErrNameNUL     = errors.New("socket: interface name contains NUL byte")
)
