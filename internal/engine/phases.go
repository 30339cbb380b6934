package engine

import "fmt"

// ProgressUpdate reports the advance of a request through its phases.
//
// Sent on an optional channel so the CLI can render what a slow lookup is waiting on.
type ProgressUpdate struct {
	Phase   Phase  // Request phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// SourceProgress is the data of a [FannedOut] update: one source has answered or failed.
type SourceProgress struct {
	Source string
	Count  int
	Err    error
}

// Phase of a request: PENDING → FANNED_OUT → MERGED → ANNOTATED → PAGINATED → DONE.
type Phase int

const (
	Pending Phase = iota
	FannedOut
	Merged
	Annotated
	Paginated
	Done
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case FannedOut:
		return "fanned_out"
	case Merged:
		return "merged"
	case Annotated:
		return "annotated"
	case Paginated:
		return "paginated"
	case Done:
		return "done"
	default:
		return ""
	}
}

// sendProgress never blocks: an update the receiver is not ready for is dropped.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func pendingUpdate(profile string, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Pending,
		Total:   total,
		Message: fmt.Sprintf("Querying %d sources of profile %s...", total, profile),
	}
}

func sourceDoneUpdate(step, total int, source string, count int, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] %s: %d contacts", step, total, source, count)
	if err != nil {
		msg = fmt.Sprintf("[%d/%d] %s: %v", step, total, source, err)
	}
	return ProgressUpdate{
		Phase:   FannedOut,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    SourceProgress{Source: source, Count: count, Err: err},
	}
}

func mergedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Merged,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Merged %d contacts", count),
	}
}

func annotatedUpdate(favorites int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Annotated,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Annotated %d favorites", favorites),
	}
}

func paginatedUpdate(shown, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Paginated,
		Step:    shown,
		Total:   total,
		Message: fmt.Sprintf("Showing %d of %d results", shown, total),
	}
}

func doneUpdate(result any) ProgressUpdate {
	return ProgressUpdate{Phase: Done, Step: 1, Total: 1, Message: "Done", Data: result}
}
