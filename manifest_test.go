package magik

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifest() *CompositeManifest {
	return &CompositeManifest{
		Daemon:   "ingest",
		Boundary: "Request",
		Consumes: []string{"Request"},
		Produces: []string{"Report"},
		Branches: []BranchManifest{
			{
				Name:     "parser",
				Owns:     []string{"Request", "Parsed"},
				Consumes: []string{"Request"},
				Produces: []string{"Parsed"},
			},
			{
				Name:     "scorer",
				Owns:     []string{"Report"},
				Consumes: []string{"Parsed"},
				Produces: []string{"Report"},
			},
		},
		Routes: []RouteRule{
			{From: boundaryName, To: "parser", EntryType: "Request"},
			{From: "parser", To: "scorer", EntryType: "Parsed"},
			{From: "scorer", To: boundaryName, EntryType: "Report"},
		},
	}
}

func TestManifestValid(t *testing.T) {
	require.NoError(t, validManifest().Validate())
}

func TestManifestMultipleOwnership(t *testing.T) {
	m := validManifest()
	m.Branches[1].Owns = append(m.Branches[1].Owns, "Parsed")

	err := m.Validate()
	var mErr *ManifestError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, "Parsed", mErr.EntryType)
	assert.ElementsMatch(t, []string{"parser", "scorer"}, mErr.Branches)
	assert.Contains(t, err.Error(), "owned by more than one journal")
}

func TestManifestProducedWithoutConsumer(t *testing.T) {
	m := validManifest()
	m.Branches[0].Produces = append(m.Branches[0].Produces, "Debug")

	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Debug"`)
	assert.Contains(t, err.Error(), "produced but has no consumer")
}

func TestManifestConsumedWithoutProducer(t *testing.T) {
	m := validManifest()
	m.Branches[1].Consumes = append(m.Branches[1].Consumes, "Missing")

	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Missing"`)
	assert.Contains(t, err.Error(), "consumed but has no producer")
}

func TestManifestSelfConsumptionDoesNotCount(t *testing.T) {
	m := validManifest()
	// A branch feeding only itself still has no real consumer.
	m.Branches[0].Produces = append(m.Branches[0].Produces, "Loop")
	m.Branches[0].Consumes = append(m.Branches[0].Consumes, "Loop")

	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced but has no consumer")
	assert.Contains(t, err.Error(), "consumed but has no producer")
}

func TestManifestBoundaryCountsAsPeer(t *testing.T) {
	m := &CompositeManifest{
		Daemon:   "echo",
		Boundary: "Msg",
		Consumes: []string{"Msg"},
		Produces: []string{"Msg"},
		Branches: []BranchManifest{
			{Name: "relay", Owns: []string{"Msg"}, Consumes: []string{"Msg"}, Produces: []string{"Msg"}},
		},
	}
	require.NoError(t, m.Validate())
}

func TestManifestDuplicateBranchName(t *testing.T) {
	m := validManifest()
	m.Branches = append(m.Branches, BranchManifest{Name: "parser"})

	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate branch name "parser"`)
}

func TestManifestRouteUnknownBranch(t *testing.T) {
	m := validManifest()
	m.Routes = append(m.Routes, RouteRule{From: "parser", To: "ghost", EntryType: "Parsed"})

	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route references unknown branch")
	assert.Contains(t, err.Error(), `"ghost"`)
}

func TestManifestReportsAllViolations(t *testing.T) {
	m := validManifest()
	m.Branches[0].Produces = append(m.Branches[0].Produces, "Debug")
	m.Routes = append(m.Routes, RouteRule{From: "ghost", To: "parser", EntryType: "Request"})

	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced but has no consumer")
	assert.Contains(t, err.Error(), "route references unknown branch")
}

func TestLoadManifest(t *testing.T) {
	data := []byte(`
daemon: ingest
boundary: Request
consumes: [Request]
produces: [Report]
branches:
  - name: parser
    owns: [Request, Parsed]
    consumes: [Request]
    produces: [Parsed]
  - name: scorer
    owns: [Report]
    consumes: [Parsed]
    produces: [Report]
routes:
  - {from: boundary, to: parser, entry_type: Request}
  - {from: parser, to: scorer, entry_type: Parsed}
  - {from: scorer, to: boundary, entry_type: Report}
`)

	m, err := LoadManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "ingest", m.Daemon)
	require.Len(t, m.Branches, 2)
	assert.Equal(t, []string{"Request", "Parsed"}, m.Branches[0].Owns)
	require.Len(t, m.Routes, 3)
	assert.Equal(t, "Parsed", m.Routes[1].EntryType)
}

func TestLoadManifestRejectsInvalid(t *testing.T) {
	_, err := LoadManifest([]byte(`
daemon: bad
branches:
  - name: lonely
    produces: [Orphan]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced but has no consumer")
}

func TestLoadManifestRejectsMalformedYAML(t *testing.T) {
	_, err := LoadManifest([]byte("daemon: [unclosed"))
	require.Error(t, err)
}
