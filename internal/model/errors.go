package model

import "errors"

var (
	// ErrNotFound is returned when a process or terminal session key is unknown.
	ErrNotFound = errors.New("not found")

	// ErrNoActiveSession is returned when an operation defaults to the current
	// terminal session and no session is current.
	ErrNoActiveSession = errors.New("no active terminal session")

	// ErrUnsupportedControl is returned for control character mnemonics the
	// terminal does not recognize.
	ErrUnsupportedControl = errors.New("unsupported control character")

	// ErrCommandRequired is returned when a request is missing the command.
	ErrCommandRequired = errors.New("command is required")

	// ErrProcessClosed is returned when writing to a process whose input
	// stream has been closed.
	ErrProcessClosed = errors.New("process is closed")

	// ErrDuplicateKey is returned when starting a process under a key that is
	// still in the live set.
	ErrDuplicateKey = errors.New("process key already in use")
)
