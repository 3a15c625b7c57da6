package wsbridge

import (
	"sync"
	"time"

	"mobilepilot/streamers"
)

// Streamer implements streamers.Handler by publishing events to the sink.
// Publishing never blocks; events are dropped when the queue is full.
type Streamer struct {
	client *Client
	now    func() time.Time

	mu    sync.Mutex
	runID string
}

func NewStreamer(client *Client) *Streamer {
	return &Streamer{client: client, now: time.Now}
}

func (s *Streamer) publish(eventType streamers.EventType, data any) {
	s.mu.Lock()
	runID := s.runID
	s.mu.Unlock()

	env, err := NewEvent(TypeEvent, &EventPayload{
		RunID:     runID,
		EventType: eventType,
		Data:      data,
		At:        s.now(),
	})
	if err != nil {
		s.client.logger.Warn("marshal event", "type", eventType, "error", err)
		return
	}
	// Drops are counted by the client.
	_ = s.client.SendEvent(env)
}

func (s *Streamer) RunStarted(e streamers.RunStarted) {
	s.mu.Lock()
	s.runID = e.RunID
	s.mu.Unlock()
	s.publish(streamers.EventRunStarted, e)
}

func (s *Streamer) StageChanged(e streamers.StageChanged) {
	s.publish(streamers.EventStageChanged, e)
}

func (s *Streamer) RoundCompleted(e streamers.RoundCompleted) {
	s.publish(streamers.EventRoundCompleted, e)
}

func (s *Streamer) RunFinished(e streamers.RunFinished) {
	s.publish(streamers.EventRunFinished, e)
}

func (s *Streamer) AnalysisStarted(e streamers.AnalysisStarted) {
	s.publish(streamers.EventAnalysisStarted, e)
}

func (s *Streamer) ItemAnalyzed(e streamers.ItemAnalyzed) {
	s.publish(streamers.EventItemAnalyzed, e)
}

func (s *Streamer) AnalysisCompleted(e streamers.AnalysisCompleted) {
	s.publish(streamers.EventAnalysisCompleted, e)
}
