package roommanager

import "errors"

// Sentinel errors for every precondition failure a caller can hit. The Room
// Manager never panics or wraps these in richer types; callers switch on
// errors.Is.
var (
	ErrRoomNotFound          = errors.New("room_not_found")
	ErrRoomFull              = errors.New("room_full")
	ErrRoomNotJoinable       = errors.New("room_not_joinable")
	ErrAlreadyInRoom         = errors.New("already_in_room")
	ErrAlreadyInThisRoom     = errors.New("already_in_this_room")
	ErrAlreadyInOtherRoom    = errors.New("already_in_other_room")
	ErrSeatTaken             = errors.New("seat_taken")
	ErrTeamFull              = errors.New("team_full")
	ErrInvalidChoice         = errors.New("invalid_choice")
	ErrNotInRoom             = errors.New("not_in_room")
	ErrPlayerNotDisconnected = errors.New("player_not_disconnected")
	ErrGracePeriodExpired    = errors.New("grace_period_expired")
)
