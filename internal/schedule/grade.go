package schedule

import (
	"fmt"
	"strings"

	"github.com/conorfennell/prepdeck/internal/domain"
)

// Grade is the user's self-assessment after answering an entry.
type Grade int

const (
	Fail Grade = 1
	Hard Grade = 2
	Good Grade = 3
	Easy Grade = 4
)

var gradeNames = map[Grade]string{
	Fail: "fail",
	Hard: "hard",
	Good: "good",
	Easy: "easy",
}

func (g Grade) String() string {
	if name, ok := gradeNames[g]; ok {
		return name
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}

// Valid reports whether g is one of the four known grades.
func (g Grade) Valid() bool {
	return g >= Fail && g <= Easy
}

// ParseGrade accepts a grade name (any case) or its number 1-4.
func ParseGrade(s string) (Grade, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for g, name := range gradeNames {
		if s == name || s == fmt.Sprint(int(g)) {
			return g, nil
		}
	}
	return 0, &domain.ValidationError{Field: "grade", Reason: fmt.Sprintf("unknown grade %q (want fail, hard, good or easy)", s)}
}
