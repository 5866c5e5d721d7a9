package climdashrpc

import (
	"testing"
	"time"

	"climdash/pkg/dataset"
	"climdash/pkg/resolver"
	"climdash/pkg/storage"
	"climdash/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_Target(t *testing.T) {
	t.Run("dataset", func(t *testing.T) {
		q := Query{Project: "sn", View: "tbl", Var: "hurs", Scenario: "ref", Horizon: "1981-2010", Stat: "mean"}
		ref, p, err := q.Target()
		require.NoError(t, err)
		assert.Empty(t, p)
		assert.Equal(t, "sn/tbl/hurs/hurs_ref_1981-2010_mean.csv", ref.Path())
	})

	t.Run("path", func(t *testing.T) {
		ref, p, err := Query{Path: "/boundaries//sn.geojson"}.Target()
		require.ErrorIs(t, err, dataset.ErrInvalidPath)
		assert.True(t, ref.IsZero())
		assert.Empty(t, p)

		_, p, err = Query{Path: "boundaries/sn.geojson"}.Target()
		require.NoError(t, err)
		assert.Equal(t, "boundaries/sn.geojson", p)
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, _, err := Query{Path: "a.csv", Var: "tasmax"}.Target()
		assert.ErrorIs(t, err, ErrAmbiguousQuery)
	})

	t.Run("incomplete dataset", func(t *testing.T) {
		_, _, err := Query{Project: "sn", View: "ts"}.Target()
		assert.ErrorIs(t, err, dataset.ErrInvalidRef)
	})
}

func TestQueryFromRef(t *testing.T) {
	ref, err := dataset.New("sn", types.ViewMap, "tasmax", "ssp245", dataset.Options{
		Horizon: "2041-2070", Region: "ch", Delta: true, Format: types.FormatNetCDF,
	})
	require.NoError(t, err)

	back, _, err := QueryFromRef(ref).Target()
	require.NoError(t, err)
	assert.Equal(t, ref, back)
}

func TestEncodeDecode_Result(t *testing.T) {
	in := resolver.Result{
		Handle: storage.Handle{Backend: "cloud", Kind: types.KindCloud, Path: "sn/ts/a.csv", Location: "s3://bucket/sn/ts/a.csv"},
		Attempts: []resolver.Attempt{
			{Backend: "local", Kind: types.KindLocal, Outcome: resolver.OutcomeTimeout, Reason: "context deadline exceeded", Duration: 2 * time.Second},
			{Backend: "cloud", Kind: types.KindCloud, Outcome: resolver.OutcomeFound, Duration: 1500 * time.Millisecond},
		},
		Duration: 2 * time.Second,
	}

	s, err := Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "cloud", s.GetFields()["handle"].GetStructValue().GetFields()["backend"].GetStringValue())

	var out resolver.Result
	require.NoError(t, Decode(s, &out))
	assert.Equal(t, in, out)
}
