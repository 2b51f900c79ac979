//go:build integration

package influxdb

import (
	"context"
	"os"
	"testing"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/stretchr/testify/require"

	"github.com/pv/temperature-notifier-go/internal/source"
)

var (
	indoorIT  = source.Measurement{Name: "it_indoor", Field: "temperature"}
	outdoorIT = source.Measurement{Name: "it_outdoor", Field: "temperature"}
)

// Requires env INFLUX_TEST_DSN, e.g. influxdb://localhost:8086/tempnotifier_test.
func TestIntegrationFetchLatest(t *testing.T) {
	dsn := os.Getenv("INFLUX_TEST_DSN")
	if dsn == "" {
		t.Skip("INFLUX_TEST_DSN is not set; skipping integration test")
	}
	ctx := context.Background()

	addr, db, user, pass, err := ParseDSN(dsn)
	require.NoError(t, err)
	c, err := client.NewHTTPClient(client.HTTPConfig{Addr: addr, Username: user, Password: pass})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Query(client.Query{Command: "CREATE DATABASE " + db})
	require.NoError(t, err)

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: db, Precision: "s"})
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Second)
	for i, v := range []float64{20, 21, 22.5} {
		p, err := client.NewPoint("it_indoor", nil, map[string]interface{}{"temperature": v}, now.Add(time.Duration(i-2)*time.Minute))
		require.NoError(t, err)
		bp.AddPoint(p)
	}
	p, err := client.NewPoint("it_outdoor", nil, map[string]interface{}{"temperature": 17.5}, now)
	require.NoError(t, err)
	bp.AddPoint(p)
	require.NoError(t, c.Write(bp))

	store, err := New(ctx, Config{DSN: dsn, Indoor: indoorIT, Outdoor: outdoorIT})
	require.NoError(t, err)
	defer store.Close()

	r, err := store.FetchLatest(ctx)
	require.NoError(t, err)
	require.Equal(t, 22.5, r.Indoor)
	require.Equal(t, 17.5, r.Outdoor)
	require.WithinDuration(t, now, r.IndoorAt, time.Second)
}
