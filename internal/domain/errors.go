package domain

import "errors"

var (
	// ErrInvalidState is returned when a command is illegal for the session's current state.
	ErrInvalidState = errors.New("command invalid for current session state")
	// ErrSessionNotFound is returned when a session id or join code resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionTerminated rejects commands against a FINISHED or CANCELLED session.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrPlayerNotFound is returned when a player tries to act before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrUnauthorized rejects host-only commands issued by anyone else.
	ErrUnauthorized = errors.New("command requires host identity")
	// ErrRoundClosed rejects submissions after the round stopped accepting answers.
	ErrRoundClosed = errors.New("round closed")
	// ErrGamePaused rejects submissions while the session is paused.
	ErrGamePaused = errors.New("game paused")
	// ErrDuplicateAnswer rejects resubmission when answer revision is disallowed.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrRosterFull is returned when the session reached its max-players cap.
	ErrRosterFull = errors.New("session roster full")
	// ErrPlayerRemoved rejects actions from a kicked player.
	ErrPlayerRemoved = errors.New("player removed from session")
	// ErrLateJoinDisabled rejects new joins after start when the setting is off.
	ErrLateJoinDisabled = errors.New("late join disabled for this session")
)
