package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// Message types carried over the realtime channel. The set is closed:
// frames with a type outside it are rejected at decode time.
const (
	TypeTasksUpdated          = "tasks_updated"
	TypeStatusChanged         = "status_changed"
	TypeShowQuestion          = "show_question"
	TypeQuestionResponse      = "question_response"
	TypeClientRegistration    = "client_registration"
	TypeConnectionEstablished = "connection_established"
	TypeError                 = "error"
	TypeRequestScreenshot     = "request_screenshot"
	TypeRequestScreenshotAck  = "request_screenshot_ack"
)

var knownTypes = map[string]struct{}{
	TypeTasksUpdated:          {},
	TypeStatusChanged:         {},
	TypeShowQuestion:          {},
	TypeQuestionResponse:      {},
	TypeClientRegistration:    {},
	TypeConnectionEstablished: {},
	TypeError:                 {},
	TypeRequestScreenshot:     {},
	TypeRequestScreenshotAck:  {},
}

type Message struct {
	Type      string          `json:"type"`
	FeatureID string          `json:"featureId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type ShowQuestionPayload struct {
	QuestionID string   `json:"questionId"`
	Question   string   `json:"question"`
	Options    []string `json:"options,omitempty"`
	AllowsText bool     `json:"allowsText"`
}

type StatusChangedPayload struct {
	TaskID        string `json:"taskId"`
	Status        string `json:"status"`
	AutoCompleted bool   `json:"autoCompleted,omitempty"`
}

type QuestionResponsePayload struct {
	QuestionID string `json:"questionId"`
	Response   string `json:"response"`
}

type ClientRegistrationPayload struct {
	Client string `json:"client"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func KnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

// Decode parses an inbound frame and rejects unknown message types.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, err
	}
	if strings.TrimSpace(msg.Type) == "" {
		return Message{}, errors.New("missing message type")
	}
	if !KnownType(msg.Type) {
		return Message{}, errors.New("unknown message type: " + msg.Type)
	}
	return msg, nil
}

func MustRaw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
