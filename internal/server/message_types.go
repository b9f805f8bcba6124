package server

// MessageType names a websocket message.
type MessageType string

const (
	// Client to server messages
	MessageTypeJoinTable        MessageType = "join_table"
	MessageTypeLeaveTable       MessageType = "leave_table"
	MessageTypeSpectate         MessageType = "spectate"
	MessageTypePlayerAction     MessageType = "player_action"
	MessageTypeChat             MessageType = "chat_message"
	MessageTypeListTables       MessageType = "list_tables"
	MessageTypeFollowTournament MessageType = "follow_tournament"

	// Server to client messages
	MessageTypeWelcome        MessageType = "welcome"
	MessageTypeGameState      MessageType = "game_state"
	MessageTypeSeatAssigned   MessageType = "seat_assigned"
	MessageTypeHandResult     MessageType = "hand_result"
	MessageTypeHandVoided     MessageType = "hand_voided"
	MessageTypeTableClosed    MessageType = "table_closed"
	MessageTypeTableLeft      MessageType = "table_left"
	MessageTypeTableList      MessageType = "table_list"
	MessageTypeActionRejected MessageType = "action_rejected"
	MessageTypeError          MessageType = "error"
)

func (mt MessageType) String() string {
	return string(mt)
}
