package model

import (
	"errors"
)

var (
	ErrUnknownArgument = errors.New("unknown argument")
	ErrArgumentSchema  = errors.New("invalid argument schema")
)
