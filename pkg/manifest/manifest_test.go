package manifest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimian/pkg/hostfacts"
	"github.com/windowsadmins/cimian/pkg/predicates"
)

// fakeResolver serves manifest bytes from an in-memory map, for testing
// Expand without a real repo client.
type fakeResolver struct {
	docs map[string][]byte
}

func (f *fakeResolver) Get(relpath string) ([]byte, error) {
	data, ok := f.docs[relpath]
	if !ok {
		return nil, fmt.Errorf("not found: %s", relpath)
	}
	return data, nil
}

func mustMarshal(t *testing.T, m Manifest) []byte {
	t.Helper()
	data, err := Marshal(&m)
	require.NoError(t, err)
	return data
}

func TestParseMarshalRoundTrip(t *testing.T) {
	m := Manifest{
		Catalogs:          []string{"production"},
		ManagedInstalls:   []string{"FooApp"},
		ManagedUninstalls: []string{"BarApp"},
		IncludedManifests: []string{"base"},
		Extra:             map[string]any{"owner": "fleet-team"},
	}
	data := mustMarshal(t, m)

	got, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, m.Catalogs, got.Catalogs)
	assert.Equal(t, m.ManagedInstalls, got.ManagedInstalls)
	assert.Equal(t, m.IncludedManifests, got.IncludedManifests)
	assert.Equal(t, "fleet-team", got.Extra["owner"])
}

func TestExpandBreaksIncludeCycles(t *testing.T) {
	resolver := &fakeResolver{docs: map[string][]byte{
		"manifests/site": mustMarshal(t, Manifest{
			ManagedInstalls:   []string{"SiteApp"},
			IncludedManifests: []string{"group"},
		}),
		"manifests/group": mustMarshal(t, Manifest{
			ManagedInstalls:   []string{"GroupApp"},
			IncludedManifests: []string{"site"}, // cycle back to root
		}),
	}}

	eff, err := Expand(resolver, "site", hostfacts.Facts{}, SelfServe{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"SiteApp", "GroupApp"}, eff.ManagedInstalls)
}

func TestExpandMergesConditionalItemsAndSelfServe(t *testing.T) {
	m := Manifest{
		ManagedInstalls: []string{"Base"},
		ConditionalItems: []*predicates.ConditionalItem{
			{
				Condition:       &predicates.Condition{Key: "architecture", Operator: "==", Value: "amd64"},
				ManagedInstalls: []string{"AmdOnlyTool"},
			},
		},
	}

	resolver := &fakeResolver{docs: map[string][]byte{"manifests/root": mustMarshal(t, m)}}

	facts := hostfacts.Facts{Architecture: "amd64", Now: time.Now()}
	eff, err := Expand(resolver, "root", facts, SelfServe{ManagedInstalls: []string{"UserChosen"}, ManagedUninstalls: []string{"UserChosen"}})
	require.NoError(t, err)

	assert.Contains(t, eff.ManagedInstalls, "Base")
	assert.Contains(t, eff.ManagedInstalls, "AmdOnlyTool")
	assert.NotContains(t, eff.ManagedInstalls, "UserChosen") // uninstall wins over self-serve install
}
