// Package model holds the archive's data model: the in-flight URL task plus
// every record type the dataset writer streams into the Atlas archive (§3).
package model

import "time"

// DiscoverySource is how a URL task came to exist.
type DiscoverySource string

const (
	DiscoverySeed     DiscoverySource = "seed"
	DiscoverySitemap  DiscoverySource = "sitemap"
	DiscoveryLink     DiscoverySource = "link"
	DiscoveryRedirect DiscoverySource = "redirect"
)

// TaskStatus is the terminal/non-terminal state of a URL task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
	TaskSkipped   TaskStatus = "skipped"
)

// URLTask is one unit of frontier work. Its identity for deduplication is
// Normalized, not URL — two tasks with the same Normalized value are the
// same task per §3's invariant.
type URLTask struct {
	URL        string
	Normalized string
	Depth      int
	Source     DiscoverySource
	Referrer   string
	Attempt    int
	Status     TaskStatus
}

// IsTerminal reports whether the task has left the frontier for good.
func (t *URLTask) IsTerminal() bool {
	switch t.Status {
	case TaskCompleted, TaskError, TaskSkipped:
		return true
	default:
		return false
	}
}

// RobotsDecision records what the policy gate decided for a URL.
type RobotsDecision string

const (
	RobotsAllow    RobotsDecision = "allow"
	RobotsDisallow RobotsDecision = "disallow"
	RobotsOverride RobotsDecision = "override"
)

// NavEndReason is why rendering/fetching considered the page "done".
type NavEndReason string

const (
	NavLoad        NavEndReason = "load"
	NavNetworkIdle NavEndReason = "networkidle"
	NavTimeout     NavEndReason = "timeout"
	NavError       NavEndReason = "error"
	NavFetch       NavEndReason = "fetch"
)

// NavigationTimings are the navigation-timing milestones recorded per page.
type NavigationTimings struct {
	NavStart          time.Time     `json:"nav_start"`
	DOMContentLoaded  time.Duration `json:"dom_content_loaded_ms"`
	LoadEventEnd      time.Duration `json:"load_event_end_ms"`
	NetworkIdleAt     time.Duration `json:"network_idle_ms,omitempty"`
}
