package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/internal/table"
	"github.com/lox/housepoker/internal/tournament"
)

// Message is the envelope of every websocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage wraps data in an envelope stamped with the current time.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type JoinTableData struct {
	TableID string `json:"table_id"`
	Seat    *int   `json:"seat,omitempty"`
	BuyIn   int    `json:"buy_in,omitempty"`
}

type TableData struct {
	TableID string `json:"table_id"`
}

type PlayerActionData struct {
	TableID string      `json:"table_id"`
	Action  game.Action `json:"action"`
	Amount  int         `json:"amount,omitempty"`
}

type ChatData struct {
	TableID string `json:"table_id"`
	Text    string `json:"text"`
}

type FollowTournamentData struct {
	TournamentID int64 `json:"tournament_id"`
}

// Server → Client Messages

type WelcomeData struct {
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Balance    int64     `json:"balance"`
	ServerTime time.Time `json:"server_time"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TableListData struct {
	Tables []table.Info `json:"tables"`
}

// messageForEvent converts a table event to the frame sent to one client.
func messageForEvent(e table.Event) (*Message, error) {
	switch e.Type {
	case table.EventState:
		return NewMessage(MessageTypeGameState, e.View)
	case table.EventSeatAssigned:
		return NewMessage(MessageTypeSeatAssigned, e)
	case table.EventHandResult:
		return NewMessage(MessageTypeHandResult, e.Result)
	case table.EventHandVoided:
		return NewMessage(MessageTypeHandVoided, e)
	case table.EventChat:
		return NewMessage(MessageTypeChat, e.Chat)
	case table.EventTableClosed:
		return NewMessage(MessageTypeTableClosed, e)
	}
	return NewMessage(MessageType(e.Type), e)
}

func messageForTournament(e tournament.Event) (*Message, error) {
	return NewMessage(MessageType(e.Type), e)
}

// rejection turns a declined action into a code the client can show.
func rejection(err error) ErrorData {
	code := "invalid_action"
	for _, c := range []struct {
		err  error
		code string
	}{
		{game.ErrNotYourTurn, "not_your_turn"},
		{game.ErrNoHand, "no_hand"},
		{game.ErrCannotCheck, "cannot_check"},
		{game.ErrRaiseTooSmall, "raise_too_small"},
		{game.ErrRaiseTooLarge, "raise_too_large"},
		{game.ErrInsufficientChips, "insufficient_chips"},
		{game.ErrRaiseNotReopened, "raise_not_reopened"},
		{game.ErrNotSeated, "not_seated"},
	} {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}
	return ErrorData{Code: code, Message: err.Error()}
}
