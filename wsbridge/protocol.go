package wsbridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mobilepilot/store"
	"mobilepilot/streamers"
)

// MessageType names an envelope on the wire.
type MessageType string

const (
	TypeRegister     MessageType = "register"
	TypeRegisterAck  MessageType = "register_ack"
	TypeHeartbeat    MessageType = "heartbeat"
	TypeHeartbeatAck MessageType = "heartbeat_ack"
	TypeEvent        MessageType = "event"
	TypeError        MessageType = "error"

	TypeGetConfig         MessageType = "get_config"
	TypeGetConfigResult   MessageType = "get_config_result"
	TypeListRuns          MessageType = "list_runs"
	TypeListRunsResult    MessageType = "list_runs_result"
	TypeGetRun            MessageType = "get_run"
	TypeGetRunResult      MessageType = "get_run_result"
	TypeGetEvents         MessageType = "get_events"
	TypeGetEventsResult   MessageType = "get_events_result"
	TypeListReports       MessageType = "list_reports"
	TypeListReportsResult MessageType = "list_reports_result"
	TypeGetRecords        MessageType = "get_records"
	TypeGetRecordsResult  MessageType = "get_records_result"
)

// Envelope wraps every message. Responses carry the RequestID of the request
// they answer; events carry none.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func newEnvelope(t MessageType, requestID string, payload any) (*Envelope, error) {
	env := &Envelope{Type: t, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = data
	}
	return env, nil
}

// NewRequest creates an envelope with a fresh request ID.
func NewRequest(t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, uuid.NewString(), payload)
}

func NewResponse(requestID string, t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, requestID, payload)
}

func NewEvent(t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, "", payload)
}

func NewError(requestID, code, message string) (*Envelope, error) {
	return newEnvelope(TypeError, requestID, &ErrorPayload{Code: code, Message: message})
}

// DecodePayload unmarshals the envelope payload into v.
func DecodePayload(env *Envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, v)
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RegisterPayload struct {
	Version  string       `json:"version"`
	Instance InstanceInfo `json:"instance"`
}

type RegisterAckPayload struct {
	InstanceID string `json:"instanceId"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
}

type HeartbeatPayload struct{}

type HeartbeatAckPayload struct{}

// EventPayload carries one streamer event.
type EventPayload struct {
	RunID     string              `json:"runId,omitempty"`
	EventType streamers.EventType `json:"eventType"`
	Data      any                 `json:"data"`
	At        time.Time           `json:"at"`
}

type GetConfigResultPayload struct {
	Instance InstanceInfo `json:"instance"`
}

// PagePayload is the request of the paged list messages.
type PagePayload struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ListRunsResultPayload struct {
	Runs  []store.Run `json:"runs"`
	Total int         `json:"total"`
}

type GetRunPayload struct {
	RunID string `json:"runId"`
}

type GetRunResultPayload struct {
	Run    store.Run        `json:"run"`
	Rounds []store.RoundRow `json:"rounds"`
}

type GetEventsPayload struct {
	RunID  string `json:"runId"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type GetEventsResultPayload struct {
	Events []store.Event `json:"events"`
}

type ListReportsResultPayload struct {
	Reports []store.Report `json:"reports"`
	Total   int            `json:"total"`
}

type GetRecordsPayload struct {
	ReportID string `json:"reportId"`
}

type GetRecordsResultPayload struct {
	Records []store.Record `json:"records"`
}
