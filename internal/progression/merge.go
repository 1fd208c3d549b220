// Package progression reconciles server and local progress into the working
// view the player sees and turns verified codes into floor transitions.
package progression

import (
	"slices"

	"breachlab/internal/badges"
	"breachlab/internal/progress"
	"breachlab/internal/session"
)

// Merged is the reconciled view of one session and the local record.
type Merged struct {
	CompletedFloors []int
	HighestLevel    int
}

// Merge unions both completed sets and takes the larger highest level. The
// session is never lowered by local data; only the local record learns from it.
// Ids outside 1..lastFloor from either side are dropped.
func Merge(s session.Progress, l progress.LocalProgress, lastFloor int) Merged {
	completed := make([]int, 0, len(s.CompletedFloors)+len(l.CompletedLevels))
	completed = append(completed, s.CompletedFloors...)
	completed = append(completed, l.CompletedLevels...)
	n := progress.Normalize(progress.LocalProgress{CompletedLevels: completed}, lastFloor)
	return Merged{CompletedFloors: n.CompletedLevels, HighestLevel: n.HighestLevel}
}

// Local is the record written back after a merge.
func (m Merged) Local() progress.LocalProgress {
	return progress.LocalProgress{
		CompletedLevels: slices.Clone(m.CompletedFloors),
		HighestLevel:    m.HighestLevel,
		CurrentBadge:    badges.IDForLevel(m.HighestLevel),
	}
}
