package version

import (
	"strconv"
	"strings"
)

// Relation is the result of comparing two version strings: a total
// order, right-zero-insensitive.
type Relation int

const (
	Lower Relation = iota - 1
	Equal
	Higher
)

func (r Relation) String() string {
	switch r {
	case Lower:
		return "LOWER"
	case Higher:
		return "HIGHER"
	default:
		return "EQUAL"
	}
}

// Compare implements version comparison directly rather than
// delegating to a library version type: split on ".", compare
// component-wise, numeric components as integers, alpha components as
// strings, missing trailing components treated as "0".
// Compare("1.0", "1.0.0") == Equal; Compare("1.0.1", "1.0") == Higher.
func Compare(a, b string) Relation {
	ap := splitComponents(a)
	bp := splitComponents(b)

	n := len(ap)
	if len(bp) > n {
		n = len(bp)
	}
	for i := 0; i < n; i++ {
		ac := componentAt(ap, i)
		bc := componentAt(bp, i)
		if ac == bc {
			continue
		}
		if r, ok := compareNumeric(ac, bc); ok {
			if r != 0 {
				return relationFromInt(r)
			}
			continue
		}
		if ac < bc {
			return Lower
		}
		return Higher
	}
	return Equal
}

// Equivalent reports whether two version strings compare Equal.
func Equivalent(a, b string) bool {
	return Compare(a, b) == Equal
}

// SatisfiesConstraint reports whether version v meets constraint c. An
// empty constraint is always satisfied. Supported forms: "1.2.3" (exact,
// modulo right-zero equivalence), ">=1.2.3", ">1.2.3", "<=1.2.3", "<1.2.3".
func SatisfiesConstraint(v, c string) bool {
	trimmed := strings.TrimSpace(c)
	if trimmed == "" {
		return true
	}
	for _, op := range []string{">=", "<=", ">", "<"} {
		if strings.HasPrefix(trimmed, op) {
			target := strings.TrimSpace(trimmed[len(op):])
			rel := Compare(v, target)
			switch op {
			case ">=":
				return rel == Higher || rel == Equal
			case "<=":
				return rel == Lower || rel == Equal
			case ">":
				return rel == Higher
			case "<":
				return rel == Lower
			}
		}
	}
	return Equivalent(v, trimmed)
}

func splitComponents(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return []string{"0"}
	}
	return strings.Split(v, ".")
}

func componentAt(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return "0"
}

func compareNumeric(a, b string) (int, bool) {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr != nil || berr != nil {
		return 0, false
	}
	switch {
	case ai < bi:
		return -1, true
	case ai > bi:
		return 1, true
	default:
		return 0, true
	}
}

func relationFromInt(i int) Relation {
	if i < 0 {
		return Lower
	}
	if i > 0 {
		return Higher
	}
	return Equal
}

