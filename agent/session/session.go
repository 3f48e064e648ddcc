// Package session tracks the lifecycle of sub-agent sessions: each time the
// Main Orchestrator delegates to a sub-agent, the Sub-Agent Runner opens one
// session, runs its own turn loop against a private history, and ends the
// session when the runner returns. Session IDs are generated by the Task
// Logger (tasklog.StartSubAgentSession); this package is the bookkeeping
// those IDs are checked into, independent of the JSON task log's own record
// of the same fact.
package session

import (
	"context"
	"errors"
	"time"
)

type (
	// Session is one sub-agent run's lifecycle record.
	Session struct {
		// ID is the generated session identifier ("<sub_agent_name>_<n>").
		ID string
		// AgentName is the configured sub-agent role name.
		AgentName string
		// Status is the current lifecycle state.
		Status Status
		// CreatedAt records when the session was opened.
		CreatedAt time.Time
		// EndedAt is set when the session is closed.
		EndedAt *time.Time
	}

	// Store tracks sessions for the lifetime of one pipeline run.
	//
	// Contract:
	//   - CreateSession is idempotent for an already-active session: it
	//     returns the existing record rather than erroring.
	//   - EndSession is idempotent: ending an already-ended session
	//     returns the stored terminal record.
	//   - The orchestration model is single-threaded cooperative (turns run
	//     one at a time), but Store implementations must still be safe for
	//     concurrent use since streaming consumers may read session state
	//     from another goroutine while a turn is in flight.
	Store interface {
		CreateSession(ctx context.Context, sessionID, agentName string, createdAt time.Time) (Session, error)
		LoadSession(ctx context.Context, sessionID string) (Session, error)
		EndSession(ctx context.Context, sessionID string, endedAt time.Time) (Session, error)
	}

	// Status is the lifecycle state of a Session.
	Status string
)

const (
	// StatusActive indicates the sub-agent's turn loop is running.
	StatusActive Status = "active"
	// StatusEnded indicates the sub-agent returned its summary and the
	// session is terminal.
	StatusEnded Status = "ended"
)

var (
	// ErrSessionNotFound indicates a session ID unknown to the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded indicates an attempt to act on an already-ended
	// session in a way that requires it still be active.
	ErrSessionEnded = errors.New("session ended")
)
