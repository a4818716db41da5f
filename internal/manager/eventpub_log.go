package manager

import "github.com/rs/zerolog"

// LogPublisher writes every event to a zerolog logger at debug level.
type LogPublisher struct{ log zerolog.Logger }

// NewLogPublisher returns a publisher logging to l.
func NewLogPublisher(l zerolog.Logger) LogPublisher {
	return LogPublisher{log: l.With().Str("component", "events").Logger()}
}

func (p LogPublisher) Publish(e Event) {
	p.log.Debug().Str("event", e.Name).Str("model", e.ModelID).Fields(e.Fields).Msg("event")
}

// multiPublisher fans out to several publishers.
type multiPublisher []EventPublisher

// MultiPublisher publishes each event to every non-nil p in order.
func MultiPublisher(p ...EventPublisher) EventPublisher {
	var out multiPublisher
	for _, x := range p {
		if x != nil {
			out = append(out, x)
		}
	}
	return out
}

func (m multiPublisher) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}
