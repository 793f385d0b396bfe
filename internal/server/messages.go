package server

import "encoding/json"

// Client message types.
const (
	MessagePlayerAction  = "player_action"
	MessageToggleShowAll = "toggle_show_all"
)

// Server message types.
const (
	MessageTableState = "table_state"
	MessageError      = "error"
)

// Error codes sent in wire error frames.
const (
	CodeMissingToken       = "missing_token"
	CodeInvalidToken       = "invalid_token"
	CodeInvalidTableID     = "invalid_table_id"
	CodeTableNotFound      = "table_not_found"
	CodeInvalidJSON        = "invalid_json"
	CodeUnknownMessageType = "unknown_message_type"
	CodeMissingAction      = "missing_action"
	CodeInvalidAction      = "invalid_action"
	CodeSpectatorOnly      = "spectator_only"
	CodeSpectatorCannotAct = "spectator_cannot_act"
	CodePlayerNotSeated    = "player_not_seated"
	CodeStartHandFailed    = "start_hand_failed"
	CodeActionFailed       = "action_failed"
	CodeBroadcastFailed    = "broadcast_failed"
)

// ClientMessage is the envelope for every client-to-server frame.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ActionPayload carries a player_action message.
type ActionPayload struct {
	Action string `json:"action"`
	Amount int64  `json:"amount"`
}

// ShowAllPayload carries a toggle_show_all message.
type ShowAllPayload struct {
	Show bool `json:"show"`
}

// StateMessage is a table_state frame.
type StateMessage struct {
	Type    string    `json:"type"`
	Payload *Snapshot `json:"payload"`
}

// ErrorMessage is an error frame.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
