package room

import "errors"

var (
	ErrRoomFull         = errors.New("room is full")
	ErrLocationNotFound = errors.New("guest location not found")
	ErrMusicNotFound    = errors.New("music not found")
)
