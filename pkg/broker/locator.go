package broker

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// SessionStore is the persistence surface the locator needs.
type SessionStore interface {
	Read() (*SessionRecord, bool)
	Write(*SessionRecord) error
	Delete() error
}

// Launcher spawns a fresh browser and reports its pid and endpoint.
type Launcher interface {
	Launch(ctx context.Context) (*LaunchResult, error)
}

// Dialer connects to a debugging endpoint and resolves a context and page.
type Dialer interface {
	Connect(ctx context.Context, endpoint, taggedContextID string) (*Conn, error)
}

// PortProbe checks whether something is already listening on the well-known
// debugging port and returns its endpoint.
type PortProbe func(ctx context.Context, port int) (string, error)

// SessionLocator resolves a usable session by trying, in order: reconnect via
// the state record, reconnect via the well-known port, launch a new browser.
// It must run under the broker lock; it is the only component that mutates
// the session record.
type SessionLocator struct {
	store    SessionStore
	launcher Launcher
	dialer   Dialer
	probe    PortProbe
	port     int
	alive    func(pid int) bool
	logger   zerolog.Logger
}

// NewSessionLocator creates a locator. probe and alive may be nil, in which
// case the defaults (version-endpoint fetch, signal-0 probe) are used.
func NewSessionLocator(store SessionStore, launcher Launcher, dialer Dialer, port int, logger zerolog.Logger) *SessionLocator {
	return &SessionLocator{
		store:    store,
		launcher: launcher,
		dialer:   dialer,
		probe:    FetchDebugEndpoint,
		port:     port,
		alive:    PidAlive,
		logger:   logger,
	}
}

// Resolve runs the tiers in order. Only exhaustion of the final tier is an
// error; earlier tiers recover locally by falling through.
func (l *SessionLocator) Resolve(ctx context.Context) (*Conn, *SessionRecord, error) {
	if conn, record := l.reconnectFromRecord(ctx); conn != nil {
		return conn, record, nil
	}

	if conn, record := l.reconnectFromPort(ctx); conn != nil {
		return conn, record, nil
	}

	return l.launchNew(ctx)
}

// reconnectFromRecord is tier 1: reuse the persisted session if its owner is
// alive and the endpoint still accepts connections. A dead owner or a refused
// connection deletes the record and falls through.
func (l *SessionLocator) reconnectFromRecord(ctx context.Context) (*Conn, *SessionRecord) {
	record, ok := l.store.Read()
	if !ok {
		return nil, nil
	}

	// Records we wrote after launching carry the browser pid; adopted
	// sessions carry pid 0 and are judged by the connection attempt alone.
	if record.Launched() && !l.alive(record.Pid) {
		l.logger.Info().Int("pid", record.Pid).Msg("recorded browser process is gone, discarding stale record")
		_ = l.store.Delete()
		return nil, nil
	}

	conn, err := l.dialer.Connect(ctx, record.Endpoint, record.ContextID)
	if err != nil {
		l.logger.Info().Err(err).Str("endpoint", record.Endpoint).Msg("recorded endpoint unreachable, discarding record")
		_ = l.store.Delete()
		return nil, nil
	}

	if conn.ContextID != record.ContextID {
		record.ContextID = conn.ContextID
		if err := l.store.Write(record); err != nil {
			l.logger.Warn().Err(err).Msg("failed to refresh session record")
		}
	}

	return conn, record
}

// reconnectFromPort is tier 2: adopt a browser that something else started on
// the well-known port, and persist a record so future callers use tier 1.
func (l *SessionLocator) reconnectFromPort(ctx context.Context) (*Conn, *SessionRecord) {
	endpoint, err := l.probe(ctx, l.port)
	if err != nil {
		return nil, nil
	}

	l.logger.Info().Int("port", l.port).Msg("debugging port already in use, adopting existing browser")

	conn, err := l.dialer.Connect(ctx, endpoint, "")
	if err != nil {
		l.logger.Info().Err(err).Msg("could not adopt browser on well-known port")
		return nil, nil
	}

	record := &SessionRecord{
		Endpoint:  endpoint,
		Pid:       0,
		ContextID: conn.ContextID,
		SessionID: newSessionID(),
	}
	if err := l.store.Write(record); err != nil {
		l.logger.Warn().Err(err).Msg("failed to persist adopted session record")
	}

	return conn, record
}

// launchNew is tier 3: spawn a browser and connect to it. Failure here is the
// sole fatal outcome of resolution.
func (l *SessionLocator) launchNew(ctx context.Context) (*Conn, *SessionRecord, error) {
	result, err := l.launcher.Launch(ctx)
	if err != nil {
		return nil, nil, &Error{
			Code:    ErrCodeSessionUnavailable,
			Message: fmt.Sprintf("All resolution tiers failed; launch error: %v", err),
			Details: map[string]interface{}{"cause": err.Error()},
		}
	}

	conn, err := l.dialer.Connect(ctx, result.Endpoint, "")
	if err != nil {
		return nil, nil, &Error{
			Code:    ErrCodeSessionUnavailable,
			Message: fmt.Sprintf("Launched browser but could not connect: %v", err),
			Details: map[string]interface{}{"endpoint": result.Endpoint, "pid": result.Pid},
		}
	}

	record := &SessionRecord{
		Endpoint:  result.Endpoint,
		Pid:       result.Pid,
		ContextID: conn.ContextID,
		SessionID: newSessionID(),
	}
	if err := l.store.Write(record); err != nil {
		l.logger.Warn().Err(err).Msg("failed to persist session record after launch")
	}

	l.logger.Info().Int("pid", result.Pid).Str("session_id", record.SessionID).Msg("launched new browser session")

	return conn, record, nil
}

func newSessionID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "unknown"
	}
	return id
}
