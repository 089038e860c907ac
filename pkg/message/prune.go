package message

import "fmt"

// PruneMode selects how a PrunePolicy chooses entries to remove.
type PruneMode int

const (
	pruneUnspecified PruneMode = iota
	// PruneModeBefore removes matching entries with id < BeforeID.
	PruneModeBefore
	// PruneModeKeep retains only the Keep most recent matching entries.
	PruneModeKeep
)

func (m PruneMode) String() string {
	switch m {
	case PruneModeBefore:
		return "before"
	case PruneModeKeep:
		return "keep"
	default:
		return "unspecified"
	}
}

// PrunePolicy describes a retention threshold. Ids are never renumbered.
type PrunePolicy struct {
	Mode     PruneMode
	BeforeID uint64
	Keep     int
}

// PruneBefore removes matching entries older than id.
func PruneBefore(id uint64) PrunePolicy { return PrunePolicy{Mode: PruneModeBefore, BeforeID: id} }

// PruneKeep keeps the n most recent matching entries.
func PruneKeep(n int) PrunePolicy { return PrunePolicy{Mode: PruneModeKeep, Keep: n} }

// Validate rejects the zero policy and negative retention counts.
func (p PrunePolicy) Validate() error {
	switch p.Mode {
	case PruneModeBefore:
		return nil
	case PruneModeKeep:
		if p.Keep < 0 {
			return fmt.Errorf("%w: keep=%d", ErrInvalidPolicy, p.Keep)
		}
		return nil
	default:
		return fmt.Errorf("%w: mode %s", ErrInvalidPolicy, p.Mode)
	}
}

func (p PrunePolicy) String() string {
	if p.Mode == PruneModeKeep {
		return fmt.Sprintf("keep=%d", p.Keep)
	}
	return fmt.Sprintf("%s=%d", p.Mode, p.BeforeID)
}
