// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"time"

	"github.com/lanternguild/gcbridge/lib/gcsession"
	"github.com/lanternguild/gcbridge/lib/presence"
	"github.com/lanternguild/gcbridge/lib/steamsession"
	"github.com/lanternguild/gcbridge/lib/taskqueue"
	"github.com/lanternguild/gcbridge/lib/version"
)

// Phase summarizes what a command queued now would meet.
type Phase string

const (
	PhaseLoggedOut     Phase = "logged_out"
	PhaseLoggingIn     Phase = "logging_in"
	PhaseAwaitingGuard Phase = "awaiting_guard"
	PhaseGCNotReady    Phase = "gc_not_ready"
	PhaseReady         Phase = "ready"
)

// Status is the snapshot served to other processes.
type Status struct {
	Phase     Phase                   `json:"phase"`
	Version   string                  `json:"version"`
	StartedAt time.Time               `json:"startedAt"`
	Session   steamsession.Status     `json:"session"`
	GC        *gcsession.Status       `json:"gc,omitempty"`
	Tasks     *taskqueue.Stats        `json:"tasks,omitempty"`
	Presence  *presence.Status        `json:"presence,omitempty"`
	Guard     *steamsession.GuardInfo `json:"guard,omitempty"`
}

// Reporter assembles Status from whichever components are running.
// Only Session is required.
type Reporter struct {
	Session   interface{ Status() steamsession.Status }
	GC        interface{ Status() gcsession.Status }
	Tasks     interface{ Stats() taskqueue.Stats }
	Presence  interface{ Status() presence.Status }
	StartedAt time.Time
}

// Snapshot returns the current status. It never blocks on the network.
func (r *Reporter) Snapshot() Status {
	status := Status{
		Version:   version.Version,
		StartedAt: r.StartedAt,
		Session:   r.Session.Status(),
	}
	if r.GC != nil {
		gc := r.GC.Status()
		status.GC = &gc
	}
	if r.Tasks != nil {
		tasks := r.Tasks.Stats()
		status.Tasks = &tasks
	}
	if r.Presence != nil {
		watch := r.Presence.Status()
		status.Presence = &watch
	}
	status.Guard = status.Session.GuardInfo
	status.Phase = phaseOf(status.Session, status.GC)
	return status
}

func phaseOf(session steamsession.Status, gc *gcsession.Status) Phase {
	switch {
	case session.HasPendingGuard:
		return PhaseAwaitingGuard
	case session.LoggingIn:
		return PhaseLoggingIn
	case !session.LoggedOn:
		return PhaseLoggedOut
	case gc == nil || !gc.GCReady:
		return PhaseGCNotReady
	default:
		return PhaseReady
	}
}
