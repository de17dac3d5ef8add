package types

// Status represents request and task group state
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// IsTerminal returns true for success and failed
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// rank orders statuses so that transitions can only move forward
func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusPending:
		return 1
	case StatusRunning:
		return 2
	case StatusSuccess, StatusFailed:
		return 3
	}
	return -1
}

// CanMoveTo returns true when transition from s to next is a forward move
func (s Status) CanMoveTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	nextRank := next.rank()
	if nextRank < 0 {
		return false
	}
	return nextRank >= s.rank()
}

func (s Status) String() string {
	return string(s)
}
