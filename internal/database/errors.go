package database

import "errors"

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
	ErrEmptyUserID   = errors.New("user id cannot be empty")
)
