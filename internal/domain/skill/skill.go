package skill

import "strings"

// Level is the ordered skill classification shared by jobs and agents.
type Level string

const (
	Beginner     Level = "beginner"
	Intermediate Level = "intermediate"
	Advanced     Level = "advanced"
	Expert       Level = "expert"
)

var order = []Level{Beginner, Intermediate, Advanced, Expert}

// Index returns the position of l on the ordered scale, or -1 when l is not a known level.
func (l Level) Index() int {
	norm := Level(strings.ToLower(strings.TrimSpace(string(l))))
	for i, v := range order {
		if v == norm {
			return i
		}
	}
	return -1
}

func (l Level) Known() bool { return l.Index() >= 0 }

// Satisfies reports whether an agent classified as l may take a job requiring req.
// Unknown values on either side pass.
func (l Level) Satisfies(req Level) bool {
	have, want := l.Index(), req.Index()
	if have < 0 || want < 0 {
		return true
	}
	return have >= want
}

// Levels returns the scale in ascending order.
func Levels() []Level {
	out := make([]Level, len(order))
	copy(out, order)
	return out
}
