package wsbridge

import (
	"errors"
	"fmt"
)

var errNoStores = errors.New("run history is not available on this instance")

func (c *Client) registerHandlers() {
	c.handlers[TypeGetConfig] = c.handleGetConfig
	c.handlers[TypeListRuns] = c.handleListRuns
	c.handlers[TypeGetRun] = c.handleGetRun
	c.handlers[TypeGetEvents] = c.handleGetEvents
	c.handlers[TypeListReports] = c.handleListReports
	c.handlers[TypeGetRecords] = c.handleGetRecords
}

func (c *Client) handleGetConfig(env *Envelope) (*Envelope, error) {
	return NewResponse(env.RequestID, TypeGetConfigResult, &GetConfigResultPayload{
		Instance: c.instance,
	})
}

func (c *Client) handleListRuns(env *Envelope) (*Envelope, error) {
	if c.stores == nil {
		return nil, errNoStores
	}
	var payload PagePayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode list_runs: %w", err)
	}
	runs, total, err := c.stores.Runs.ListRuns(payload.Limit, payload.Offset)
	if err != nil {
		return nil, err
	}
	return NewResponse(env.RequestID, TypeListRunsResult, &ListRunsResultPayload{Runs: runs, Total: total})
}

func (c *Client) handleGetRun(env *Envelope) (*Envelope, error) {
	if c.stores == nil {
		return nil, errNoStores
	}
	var payload GetRunPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_run: %w", err)
	}
	run, err := c.stores.Runs.GetRun(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", payload.RunID, err)
	}
	rounds, err := c.stores.Runs.GetRounds(payload.RunID)
	if err != nil {
		return nil, err
	}
	return NewResponse(env.RequestID, TypeGetRunResult, &GetRunResultPayload{Run: *run, Rounds: rounds})
}

func (c *Client) handleGetEvents(env *Envelope) (*Envelope, error) {
	if c.stores == nil {
		return nil, errNoStores
	}
	var payload GetEventsPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_events: %w", err)
	}
	events, err := c.stores.Events.GetEventsByRun(payload.RunID, payload.Limit, payload.Offset)
	if err != nil {
		return nil, err
	}
	return NewResponse(env.RequestID, TypeGetEventsResult, &GetEventsResultPayload{Events: events})
}

func (c *Client) handleListReports(env *Envelope) (*Envelope, error) {
	if c.stores == nil {
		return nil, errNoStores
	}
	var payload PagePayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode list_reports: %w", err)
	}
	reports, total, err := c.stores.Reports.ListReports(payload.Limit, payload.Offset)
	if err != nil {
		return nil, err
	}
	return NewResponse(env.RequestID, TypeListReportsResult, &ListReportsResultPayload{Reports: reports, Total: total})
}

func (c *Client) handleGetRecords(env *Envelope) (*Envelope, error) {
	if c.stores == nil {
		return nil, errNoStores
	}
	var payload GetRecordsPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_records: %w", err)
	}
	records, err := c.stores.Reports.GetRecords(payload.ReportID)
	if err != nil {
		return nil, err
	}
	return NewResponse(env.RequestID, TypeGetRecordsResult, &GetRecordsResultPayload{Records: records})
}
