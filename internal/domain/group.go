package domain

import "errors"

type GroupID string

const DefaultGroupCapacity = 6

var ErrGroupFull = errors.New("group call is full")
