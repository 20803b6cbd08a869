package reconcile

import (
	"time"

	"lichka/internal/models"
)

// Cluster is a run of consecutive messages from one sender within one
// calendar day.
type Cluster struct {
	Sender   string
	Messages []models.Message
}

// DayGroup holds everything under one date separator.
type DayGroup struct {
	Day      time.Time
	Clusters []Cluster
}

// GroupByDay splits an ordered thread for presentation: a new date
// separator whenever the calendar day changes relative to the previous
// message, a new cluster whenever the sender changes inside a day.
// Days are computed in each timestamp's own location; callers wanting
// viewer-local separators convert before grouping.
func GroupByDay(msgs []models.Message) []DayGroup {
	var groups []DayGroup
	for _, m := range msgs {
		day := truncateToDay(m.CreatedAt)

		if len(groups) == 0 || !groups[len(groups)-1].Day.Equal(day) {
			groups = append(groups, DayGroup{Day: day})
		}
		g := &groups[len(groups)-1]

		if len(g.Clusters) == 0 || g.Clusters[len(g.Clusters)-1].Sender != m.Sender {
			g.Clusters = append(g.Clusters, Cluster{Sender: m.Sender})
		}
		c := &g.Clusters[len(g.Clusters)-1]
		c.Messages = append(c.Messages, m)
	}
	return groups
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
