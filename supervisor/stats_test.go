// File: supervisor/stats_test.go
package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRatesComputesPacketsPerSecond(t *testing.T) {
	prev := portSample{name: "eth0", rx: 1000, tx: 500}
	cur := portSample{name: "eth0", rx: 1100, tx: 520}

	rx, tx := rates(prev, cur, float64(time.Second.Nanoseconds()))
	require.InDelta(t, 100.0, rx, 0.001)
	require.InDelta(t, 20.0, tx, 0.001)
}

func TestRatesZeroElapsedReportsZero(t *testing.T) {
	prev := portSample{name: "eth0", rx: 1000}
	cur := portSample{name: "eth0", rx: 1100}

	rx, tx := rates(prev, cur, 0)
	require.Zero(t, rx)
	require.Zero(t, tx)
}
