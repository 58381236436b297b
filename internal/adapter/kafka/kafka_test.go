package kafka

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
)

func TestSerializeRow(t *testing.T) {
	now := time.Date(2026, 3, 16, 15, 10, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	table := domain.RMSTable{
		Times:  []time.Time{time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC)},
		Labels: []string{"4.0-14.0", "0.1-1.0"},
		Values: [][]float64{{7.4162e-06, math.NaN()}},
	}

	msg, err := serializeRow(id, domain.UnitDisplacement, table, 0)
	require.NoError(t, err)

	assert.Equal(t, []byte("CH.DAVOX..HHZ"), msg.Key)
	assert.Contains(t, string(msg.Value), `"stream":"CH.DAVOX..HHZ"`)
	assert.Contains(t, string(msg.Value), `"unit":"displacement"`)
	assert.Contains(t, string(msg.Value), `"4.0-14.0":7.4162e-06`)
	assert.NotContains(t, string(msg.Value), "0.1-1.0", "all-NaN band is omitted")

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "stream", msg.Headers[0].Key)
	assert.Equal(t, []byte("CH.DAVOX..HHZ"), msg.Headers[0].Value)
	assert.Equal(t, "unit", msg.Headers[1].Key)
	assert.Equal(t, []byte("displacement"), msg.Headers[1].Value)
	assert.Equal(t, "processed_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)
}
