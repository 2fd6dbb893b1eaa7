package notify

import "strings"

// Condition is a job lifecycle event label.
//
// Conditions are not a state machine: the dispatcher accepts any condition at
// any time, in any order.
type Condition string

const (
	Started Condition = "started"
	Stopped Condition = "stopped"
	Aborted Condition = "aborted"
	Failed  Condition = "failed"
	Other   Condition = "other"
)

// Text returns the canonical wording used in notifications.
func (c Condition) Text() string {
	switch c {
	case Started:
		return "started"
	case Stopped:
		return "finished"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "reported an event"
	}
}

// Category returns the push notification name for the condition.
func (c Condition) Category() string {
	switch c {
	case Started, Stopped, Aborted, Failed:
		return "job-" + string(c)
	default:
		return "job-" + string(Other)
	}
}

// categories lists every push notification name, in registration order.
var categories = []Condition{Started, Stopped, Aborted, Failed, Other}

// ParseMailPoints converts PBS mail points ("a", "b", "e", "n") into the set
// of conditions that trigger mail. Empty input means "a".
//
//	b: job began (started)
//	e: job ended (stopped)
//	a: job aborted (aborted, failed)
//	n: no mail
func ParseMailPoints(points string) map[Condition]bool {
	points = strings.TrimSpace(strings.ToLower(points))
	if points == "" {
		points = "a"
	}
	out := map[Condition]bool{}
	if strings.Contains(points, "n") {
		return out
	}
	for _, p := range points {
		switch p {
		case 'b':
			out[Started] = true
		case 'e':
			out[Stopped] = true
		case 'a':
			out[Aborted] = true
			out[Failed] = true
		}
	}
	return out
}
