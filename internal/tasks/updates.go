package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	LoadCatalog Phase = iota
	ProjectSongs
	ProjectUsers
	DrainOutbox
)

func (p Phase) String() string {
	switch p {
	case LoadCatalog:
		return "load_catalog"
	case ProjectSongs:
		return "project_songs"
	case ProjectUsers:
		return "project_users"
	case DrainOutbox:
		return "drain_outbox"
	default:
		return ""
	}
}

func loadCatalogUpdate(songs, users int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadCatalog,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loaded catalog: %d songs, %d users", songs, users),
	}
}

func projectedUpdate(phase Phase, step, total int, label string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, label),
	}
}

func projectFailedUpdate(phase Phase, step, total int, label string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, label, err),
	}
}

func drainUpdate(processed, failed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DrainOutbox,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Drained outbox: %d processed, %d failed", processed, failed),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
