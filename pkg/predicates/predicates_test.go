package predicates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimian/pkg/hostfacts"
)

func testEvaluator() *Evaluator {
	return NewEvaluator(hostfacts.Facts{
		Hostname:     "LAB-042",
		OSVersion:    "10.0.19045",
		Architecture: "amd64",
		DiskFreeMB:   20480,
		Now:          time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Custom: map[string]any{
			"catalog": "production",
		},
	})
}

func TestEvaluateCondition(t *testing.T) {
	e := testEvaluator()

	cases := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"nil condition is vacuous", nil, true},
		{"equals match", &Condition{Key: "architecture", Operator: "==", Value: "amd64"}, true},
		{"equals mismatch", &Condition{Key: "architecture", Operator: "==", Value: "arm64"}, false},
		{"not equals", &Condition{Key: "hostname", Operator: "!=", Value: "OTHER"}, true},
		{"greater than", &Condition{Key: "disk_free_mb", Operator: ">", Value: "1000"}, true},
		{"begins with", &Condition{Key: "hostname", Operator: "BEGINSWITH", Value: "lab"}, true},
		{"contains", &Condition{Key: "os_version", Operator: "CONTAINS", Value: "19045"}, true},
		{"in list", &Condition{Key: "catalog", Operator: "IN", Value: "staging,production"}, true},
		{"like wildcard", &Condition{Key: "hostname", Operator: "LIKE", Value: "*042"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.EvaluateCondition(tc.cond)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateConditionUnknownKey(t *testing.T) {
	e := testEvaluator()
	_, err := e.EvaluateCondition(&Condition{Key: "nonexistent", Operator: "==", Value: "x"})
	assert.Error(t, err)
}

func TestEvaluateConditionalItemAndOr(t *testing.T) {
	e := testEvaluator()

	andItem := &ConditionalItem{
		Conditions: []*Condition{
			{Key: "architecture", Operator: "==", Value: "amd64"},
			{Key: "catalog", Operator: "==", Value: "production"},
		},
		ConditionType: "AND",
	}
	ok, err := e.EvaluateConditionalItem(andItem)
	require.NoError(t, err)
	assert.True(t, ok)

	orItem := &ConditionalItem{
		Conditions: []*Condition{
			{Key: "architecture", Operator: "==", Value: "arm64"},
			{Key: "catalog", Operator: "==", Value: "production"},
		},
		ConditionType: "OR",
	}
	ok, err = e.EvaluateConditionalItem(orItem)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpandConditionalItems(t *testing.T) {
	e := testEvaluator()

	items := []*ConditionalItem{
		{
			Condition:       &Condition{Key: "architecture", Operator: "==", Value: "amd64"},
			ManagedInstalls: []string{"GoogleChrome"},
		},
		{
			Condition:       &Condition{Key: "architecture", Operator: "==", Value: "arm64"},
			ManagedInstalls: []string{"ShouldNotAppear"},
		},
		{
			Condition:        &Condition{Key: "catalog", Operator: "==", Value: "production"},
			OptionalInstalls: []string{"Zoom"},
		},
	}

	installs, uninstalls, updates, optional := e.ExpandConditionalItems(items)
	assert.Equal(t, []string{"GoogleChrome"}, installs)
	assert.Empty(t, uninstalls)
	assert.Empty(t, updates)
	assert.Equal(t, []string{"Zoom"}, optional)
}
