package chat

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"strategic-advisor/internal/advisor"
	"strategic-advisor/internal/config"
	"strategic-advisor/internal/router"
	"strategic-advisor/internal/session"
)

// ErrorMessage is the content of the system turn added on transport failure
const ErrorMessage = "Error: Connection to advisor backend failed."

// Streamer opens a response stream for one turn
type Streamer interface {
	Open(ctx context.Context, endpoint string, req advisor.ChatRequest) (*advisor.EventStream, error)
}

// Saver persists a session after every turn
type Saver interface {
	Put(rec session.Record) error
}

// Observer receives turn lifecycle notifications on top of the router's
// content and trace updates.
type Observer interface {
	router.Observer
	TurnStarted(turn session.Turn)
	TurnCompleted(turn session.Turn)
	SystemMessage(turn session.Turn)
}

// Controller runs one user turn at a time against the backend
type Controller struct {
	cfg      *config.Config
	streamer Streamer
	session  *session.Session
	router   *router.Router
	saver    Saver
	observer Observer
	logger   zerolog.Logger

	mode config.Mode
	mock bool
}

// Options for NewController. Saver and Observer are optional.
type Options struct {
	Config   *config.Config
	Streamer Streamer
	Session  *session.Session
	Saver    Saver
	Observer Observer
	Logger   *zerolog.Logger
}

// NewController wires a router over the session and returns the controller
func NewController(opts Options) (*Controller, error) {
	if opts.Config == nil {
		return nil, errors.New("config is nil")
	}
	if opts.Streamer == nil {
		return nil, errors.New("streamer is nil")
	}
	s := opts.Session
	if s == nil {
		s = session.New()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	routerOpts := []router.Option{router.WithLogger(logger)}
	if opts.Observer != nil {
		routerOpts = append(routerOpts, router.WithObserver(opts.Observer))
	}

	return &Controller{
		cfg:      opts.Config,
		streamer: opts.Streamer,
		session:  s,
		router:   router.New(s, router.NewLabels(opts.Config.SupervisorNodes...), routerOpts...),
		saver:    opts.Saver,
		observer: opts.Observer,
		logger:   logger,
		mode:     opts.Config.Mode,
		mock:     opts.Config.Mock,
	}, nil
}

// Session returns the conversation state
func (c *Controller) Session() *session.Session {
	return c.session
}

// Busy reports whether a turn is streaming
func (c *Controller) Busy() bool {
	return c.session.InProgress()
}

// Mode returns the current routing mode and mock flag
func (c *Controller) Mode() (config.Mode, bool) {
	return c.mode, c.mock
}

// SetMode switches the live endpoint used by subsequent turns
func (c *Controller) SetMode(m config.Mode) {
	c.mode = m
}

// SetMock toggles the mock endpoint for subsequent turns
func (c *Controller) SetMock(mock bool) {
	c.mock = mock
}

// Endpoint returns the URL the next turn will be sent to
func (c *Controller) Endpoint() string {
	return c.cfg.Endpoint(c.mode, c.mock)
}

// Reset starts a new session with a new thread id
func (c *Controller) Reset() error {
	return c.session.Reset()
}

// Submit sends text as a new user turn and streams the response into the
// session. It returns session.ErrTurnInProgress or session.ErrEmptyMessage
// without issuing a request when the submission is rejected. Transport
// failures are recorded as a system turn and are not returned.
func (c *Controller) Submit(ctx context.Context, text string) error {
	if _, err := c.session.Submit(text); err != nil {
		return err
	}

	endpoint := c.Endpoint()
	logger := c.logger.With().
		Str("thread_id", c.session.ThreadID()).
		Str("endpoint", endpoint).
		Logger()

	defer c.finish(logger)

	stream, err := c.streamer.Open(ctx, endpoint, advisor.ChatRequest{
		Message:  text,
		ThreadID: c.session.ThreadID(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Stream failed")
		c.fail()
		return nil
	}
	defer stream.Close()

	turn, err := c.session.BeginAssistant()
	if err != nil {
		return errors.Wrap(err, "failed to start assistant turn")
	}
	if c.observer != nil {
		c.observer.TurnStarted(turn)
	}

	frames := 0
	for {
		data, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error().Err(err).Int("frames", frames).Msg("Stream failed")
			c.fail()
			return nil
		}
		frames++
		if err := c.router.Apply(data); err != nil {
			return errors.Wrap(err, "failed to apply stream event")
		}
	}

	logger.Debug().Int("frames", frames).Msg("Stream complete")
	return nil
}

// fail closes out the active turn, then records the transport failure
// after it.
func (c *Controller) fail() {
	c.complete()
	t := c.session.Fail(ErrorMessage)
	if c.observer != nil {
		c.observer.SystemMessage(t)
	}
}

func (c *Controller) complete() {
	activeID := c.session.ActiveID()
	c.session.Complete()

	if activeID != "" && c.observer != nil {
		if t, ok := c.session.Turn(activeID); ok {
			c.observer.TurnCompleted(t)
		}
	}
}

// finish always returns the session to an input-accepting state
func (c *Controller) finish(logger zerolog.Logger) {
	c.complete()

	if c.saver != nil {
		if err := c.saver.Put(c.session.Record()); err != nil {
			logger.Warn().Err(err).Msg("Failed to save history")
		}
	}
}
