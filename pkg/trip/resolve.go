package trip

import (
	"sort"

	"github.com/codeGROOVE-dev/tripsense/pkg/activity"
)

// Resolve keeps the best sessions that do not overlap in time. Candidates are ranked
// by score, then confirmed before detected, then earlier start, then type name; each
// is accepted unless it overlaps one already accepted. Accepted sessions come back in
// start order, dropped ones in rank order. Sessions are never modified.
func Resolve(candidates []activity.Session) (accepted, dropped []activity.Session) {
	ranked := append([]activity.Session(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ac, bc := a.Label == activity.LabelConfirmed, b.Label == activity.LabelConfirmed; ac != bc {
			return ac
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.ID < b.ID
	})

	accepted = []activity.Session{}
next:
	for _, c := range ranked {
		for _, a := range accepted {
			if c.Overlaps(a) {
				dropped = append(dropped, c)
				continue next
			}
		}
		accepted = append(accepted, c)
	}
	activity.SortSessions(accepted)
	return accepted, dropped
}
