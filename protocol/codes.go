// Package protocol implements the wire format shared by the game server and
// its clients: request/action code enumerations, the length-prefixed frame
// codec and the per-connection receive buffer that reassembles frames from
// partial reads.
package protocol

import (
	"fmt"
	"strconv"
)

// RequestCode identifies the subsystem a frame is addressed to.
type RequestCode uint32

const (
	RequestNone RequestCode = iota // default category
	RequestUser
	RequestRoom
	RequestGame
)

var requestNames = map[RequestCode]string{
	RequestNone: "None",
	RequestUser: "User",
	RequestRoom: "Room",
	RequestGame: "Game",
}

// String returns the symbolic name of the request code, or RequestCode(n)
// for values outside the enumeration.
func (r RequestCode) String() string {
	if name, ok := requestNames[r]; ok {
		return name
	}

	return "RequestCode(" + strconv.FormatUint(uint64(r), 10) + ")"
}

// ParseRequestCode returns the request code whose symbolic name is name.
//
// Parameters:
//   - name: A name as returned by RequestCode.String
//
// Returns:
//   - The matching RequestCode
//   - An error if no member carries that name
func ParseRequestCode(name string) (RequestCode, error) {
	for code, n := range requestNames {
		if n == name {
			return code, nil
		}
	}

	return 0, fmt.Errorf("unknown request code %q", name)
}

// ActionCode identifies an operation within a request category. The
// symbolic name of every member is unique.
type ActionCode uint32

const (
	ActionNone ActionCode = iota
	ActionLogin
	ActionRegister
	ActionListRoom
	ActionCreateRoom
	ActionJoinRoom
	ActionUpdateRoom
	ActionQuitRoom
	ActionStartGame
	ActionShowTimer
	ActionStartPlay
	ActionMove
	ActionShoot
	ActionAttack
	ActionGameOver
	ActionUpdateResult
	ActionQuitBattle
	ActionHeartbeat
)

var actionNames = map[ActionCode]string{
	ActionNone:         "None",
	ActionLogin:        "Login",
	ActionRegister:     "Register",
	ActionListRoom:     "ListRoom",
	ActionCreateRoom:   "CreateRoom",
	ActionJoinRoom:     "JoinRoom",
	ActionUpdateRoom:   "UpdateRoom",
	ActionQuitRoom:     "QuitRoom",
	ActionStartGame:    "StartGame",
	ActionShowTimer:    "ShowTimer",
	ActionStartPlay:    "StartPlay",
	ActionMove:         "Move",
	ActionShoot:        "Shoot",
	ActionAttack:       "Attack",
	ActionGameOver:     "GameOver",
	ActionUpdateResult: "UpdateResult",
	ActionQuitBattle:   "QuitBattle",
	ActionHeartbeat:    "Heartbeat",
}

// String returns the symbolic name of the action code, or ActionCode(n)
// for values outside the enumeration.
func (a ActionCode) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}

	return "ActionCode(" + strconv.FormatUint(uint64(a), 10) + ")"
}

// ParseActionCode returns the action code whose symbolic name is name.
//
// Parameters:
//   - name: A name as returned by ActionCode.String
//
// Returns:
//   - The matching ActionCode
//   - An error if no member carries that name
func ParseActionCode(name string) (ActionCode, error) {
	for code, n := range actionNames {
		if n == name {
			return code, nil
		}
	}

	return 0, fmt.Errorf("unknown action code %q", name)
}
