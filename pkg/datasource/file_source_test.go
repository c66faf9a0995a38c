package datasource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/governor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
flow:
  - resource: "R"
    limit_app: "default"
    grade: 1
    count: 10
degrade:
  - resource: "R"
    grade: 0
    count: 50
    time_window_sec: 2
authority:
  - resource: "R"
    limit_app: "ops"
    strategy: 0
param_flow:
  - resource: "R"
    param_idx: 0
    grade: 1
    count: 5
    exclusion_items:
      "42": 100
system:
  - qps: 1000
`

func TestYamlConverter_FullDocument(t *testing.T) {
	doc, err := YamlConverter([]byte(sampleRules))
	require.NoError(t, err)
	require.Len(t, doc.Flow, 1)
	assert.Equal(t, 10.0, doc.Flow[0].Count)
	require.Len(t, doc.Degrade, 1)
	require.Len(t, doc.Authority, 1)
	require.Len(t, doc.ParamFlow, 1)
	assert.Equal(t, 100.0, doc.ParamFlow[0].ExclusionItems["42"])
	require.Len(t, doc.System, 1)
}

func TestYamlConverter_Garbage(t *testing.T) {
	_, err := YamlConverter([]byte("flow: {not a list}"))
	assert.Error(t, err)
}

func TestApply_LoadsEverySection(t *testing.T) {
	gov := governor.New(governor.WithClock(clock.NewMock(100_000)))
	doc, err := YamlConverter([]byte(sampleRules))
	require.NoError(t, err)
	require.NoError(t, Apply(gov, doc))

	assert.Len(t, gov.FlowRules().GetRules(), 1)
	assert.Len(t, gov.DegradeRules().GetRules(), 1)
	assert.Len(t, gov.AuthorityRules().GetRules(), 1)
	assert.Len(t, gov.ParamRules().GetRules(), 1)
	assert.Len(t, gov.SystemRules().GetRules(), 1)
}

func TestApply_InvalidSectionKeepsOthers(t *testing.T) {
	gov := governor.New(governor.WithClock(clock.NewMock(100_000)))
	doc := &RuleDocument{}
	docGood, err := YamlConverter([]byte(sampleRules))
	require.NoError(t, err)
	doc.Flow = docGood.Flow
	doc.Degrade = docGood.Degrade
	doc.Degrade[0].TimeWindowSec = 0 // invalid

	err = Apply(gov, doc)
	require.Error(t, err)
	// Valid sections still applied; the invalid one kept its previous set.
	assert.Len(t, gov.FlowRules().GetRules(), 1)
	assert.Empty(t, gov.DegradeRules().GetRules())
}

func TestFileSource_RefreshAndNoopOnSameContent(t *testing.T) {
	gov := governor.New(governor.WithClock(clock.NewMock(100_000)))
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o644))

	src := NewFileSource(gov, path, 0, nil)
	src.refresh()
	assert.Len(t, gov.FlowRules().GetRules(), 1)

	// Identical content is skipped by the content hash.
	hash := src.lastHash
	src.refresh()
	assert.Equal(t, hash, src.lastHash)

	// A broken update keeps the active set.
	require.NoError(t, os.WriteFile(path, []byte("flow: {boom}"), 0o644))
	src.refresh()
	assert.Len(t, gov.FlowRules().GetRules(), 1)
}
