package version

import "testing"

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want Relation
	}{
		{"1.0", "1.0.0", Equal},
		{"1.0.1", "1.0", Higher},
		{"10.0", "10.0.0", Equal},
		{"2.0", "10.0", Lower},
		{"1.2.3", "1.2.3", Equal},
		{"1.2", "1.2.0.0", Equal},
		{"1.2.0.1", "1.2", Higher},
		{"1.10", "1.9", Higher},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare(%q, %q) = %s, want %s", c.a, c.b, got, c.want)
		}
	}
}

func TestSatisfiesConstraint(t *testing.T) {
	if !SatisfiesConstraint("2.0", "") {
		t.Error("empty constraint should always satisfy")
	}
	if !SatisfiesConstraint("2.0", ">=1.0") {
		t.Error("2.0 should satisfy >=1.0")
	}
	if SatisfiesConstraint("2.0", ">2.0") {
		t.Error("2.0 should not satisfy >2.0")
	}
	if !SatisfiesConstraint("1.0.0", "1.0") {
		t.Error("1.0.0 should satisfy exact constraint 1.0")
	}
}
