package router

import (
	"github.com/rs/zerolog"

	"strategic-advisor/internal/session"
)

// Observer is told about every change the router makes to the active turn.
// Implementations use it to keep the newest content in view.
type Observer interface {
	ContentReplaced(turnID string, content string)
	TraceAppended(turnID string, trace session.TraceEvent)
}

// Router folds decoded stream events into the active turn of a session
type Router struct {
	session     *session.Session
	supervisors Labels
	observer    Observer
	logger      zerolog.Logger
}

// Option configures a Router
type Option func(*Router)

// WithObserver sets the observer notified after each mutation
func WithObserver(o Observer) Option {
	return func(r *Router) {
		r.observer = o
	}
}

// WithLogger replaces the router's logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// New creates a router for s
func New(s *session.Session, supervisors Labels, opts ...Option) *Router {
	r := &Router{
		session:     s,
		supervisors: supervisors,
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Apply decodes data and merges it into the active turn. Malformed payloads
// are logged and dropped. The returned error is only set when there is no
// active turn to apply to.
func (r *Router) Apply(data []byte) error {
	ev, err := Decode(data, r.supervisors)
	if err != nil {
		r.logger.Warn().Err(err).Bytes("payload", truncate(data, 256)).Msg("Dropping stream frame")
		return nil
	}
	return r.ApplyEvent(ev)
}

// ApplyEvent merges an already decoded event into the active turn
func (r *Router) ApplyEvent(ev Event) error {
	turnID := r.session.ActiveID()

	switch ev.Kind {
	case KindFinalAnswer:
		text := ev.Text()
		if err := r.session.ReplaceContent(text); err != nil {
			return err
		}
		r.logger.Debug().Str("node", ev.Trace.Node).Int("len", len(text)).Msg("Final answer updated")
		if r.observer != nil {
			r.observer.ContentReplaced(turnID, text)
		}
		if ev.HasToolCalls {
			return r.appendTrace(turnID, ev.Trace)
		}
		return nil

	default:
		return r.appendTrace(turnID, ev.Trace)
	}
}

func (r *Router) appendTrace(turnID string, tr session.TraceEvent) error {
	added, err := r.session.AppendTrace(tr)
	if err != nil {
		return err
	}
	if !added {
		r.logger.Debug().Str("node", tr.Node).Msg("Skipping duplicate trace")
		return nil
	}
	r.logger.Debug().Str("node", tr.Node).Str("type", tr.Type).Msg("Trace appended")
	if r.observer != nil {
		r.observer.TraceAppended(turnID, tr)
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
