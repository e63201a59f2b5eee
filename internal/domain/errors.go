package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a course room has no live session yet.
	ErrRoomNotFound = errors.New("room not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrQuestionNotFound indicates the question content could not be loaded.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotModerator is returned when a moderator command arrives from a participant connection.
	ErrNotModerator = errors.New("connection is not the room moderator")
	// ErrInvalidCapability indicates a moderator token that is malformed, expired or for another room.
	ErrInvalidCapability = errors.New("invalid moderator capability")
	// ErrOwnerUnavailable is returned when no instance is listening for the room owner's commands.
	ErrOwnerUnavailable = errors.New("room owner unavailable")
)
