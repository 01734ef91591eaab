package models

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint_ValueWritesEWKT(t *testing.T) {
	v, err := NewPoint(12.9, 77.6).Value()
	require.NoError(t, err)
	assert.Equal(t, "SRID=4326;POINT(77.6 12.9)", v)

	v, err = Point{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPoint_ScanEWKTRoundTrip(t *testing.T) {
	orig := NewPoint(-6.2, 106.816666)
	v, err := orig.Value()
	require.NoError(t, err)

	var got Point
	require.NoError(t, got.Scan(v))
	assert.True(t, got.Valid)
	assert.InDelta(t, orig.Lat, got.Lat, 1e-9)
	assert.InDelta(t, orig.Lng, got.Lng, 1e-9)
}

func TestPoint_ScanHexEWKB(t *testing.T) {
	raw, err := ewkb.Marshal(orb.Point{77.6, 12.9}, SRID)
	require.NoError(t, err)

	t.Run("hex string from postgis", func(t *testing.T) {
		var p Point
		require.NoError(t, p.Scan(hex.EncodeToString(raw)))
		assert.InDelta(t, 12.9, p.Lat, 1e-9)
		assert.InDelta(t, 77.6, p.Lng, 1e-9)
	})

	t.Run("raw bytes", func(t *testing.T) {
		var p Point
		require.NoError(t, p.Scan(raw))
		assert.InDelta(t, 12.9, p.Lat, 1e-9)
		assert.InDelta(t, 77.6, p.Lng, 1e-9)
	})
}

func TestPoint_ScanNullAndGarbage(t *testing.T) {
	p := NewPoint(1, 1)
	require.NoError(t, p.Scan(nil))
	assert.False(t, p.Valid)

	assert.Error(t, p.Scan("not a point"))
	assert.Error(t, p.Scan(42))
}

func TestPoint_JSON(t *testing.T) {
	b, err := json.Marshal(NewPoint(12.9, 77.6))
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":12.9,"lng":77.6}`, string(b))

	b, err = json.Marshal(Point{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	var p Point
	assert.Error(t, json.Unmarshal([]byte(`{"lat":91,"lng":0}`), &p))
}

func TestPoint_DistanceKm(t *testing.T) {
	// one degree of latitude is ~111.2 km on the sphere orb uses
	d := NewPoint(0, 0).DistanceKm(NewPoint(1, 0))
	assert.InDelta(t, 111.2, d, 0.5)
}

func TestJobStatus_Transitions(t *testing.T) {
	assert.True(t, JobStatusDraft.CanTransitionTo(JobStatusOpen))
	assert.True(t, JobStatusOpen.CanTransitionTo(JobStatusInProgress))
	assert.True(t, JobStatusInProgress.CanTransitionTo(JobStatusCompleted))
	assert.True(t, JobStatusInProgress.CanTransitionTo(JobStatusCancelled))

	assert.False(t, JobStatusOpen.CanTransitionTo(JobStatusDraft))
	assert.False(t, JobStatusDraft.CanTransitionTo(JobStatusCompleted))
	assert.False(t, JobStatusCompleted.CanTransitionTo(JobStatusOpen))
	assert.True(t, JobStatusCancelled.Terminal())
}
