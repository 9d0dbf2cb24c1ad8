package models

import "time"

// SessionStatus represents the state of an agent session.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusIdle       SessionStatus = "idle"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusError      SessionStatus = "error"
)

// AgentSession is the ephemeral per-process session tying local registries
// to a remote conversation thread. It lives only in memory.
type AgentSession struct {
	ID           string
	ThreadID     string
	TaskIDs      []string
	MessageCount int
	Status       SessionStatus
	StartedAt    time.Time
	LastActiveAt time.Time
}
