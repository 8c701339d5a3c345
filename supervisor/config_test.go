// File: supervisor/config_test.go
package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFlagsBuildsPortsWithQueueOverride(t *testing.T) {
	cfg, err := ParseFlags([]string{
		"-c", "0", "-c", "1",
		"-i", "eth0", "-q", "3",
		"-i", "eth1",
		"-i", "eth2", "-q", "7",
		"-i", "eth3",
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, cfg.CPUs)
	require.Equal(t, []PortSpec{
		{Interface: "eth0", QueueID: 3},
		{Interface: "eth1", QueueID: 0},
		{Interface: "eth2", QueueID: 7},
		{Interface: "eth3", QueueID: 0},
	}, cfg.Ports)
}

func TestParseFlagsRejectsQBeforeI(t *testing.T) {
	_, err := ParseFlags([]string{"-c", "0", "-q", "1", "-i", "eth0"})
	require.ErrorIs(t, err, ErrConfig)
}

func TestParseFlagsRejectsNonMultiplePortCount(t *testing.T) {
	_, err := ParseFlags([]string{"-c", "0", "-c", "1", "-i", "eth0"})
	require.ErrorIs(t, err, ErrConfig)
}

func TestParseFlagsAppliesAmbientDefaults(t *testing.T) {
	cfg, err := ParseFlags([]string{"-c", "0", "-i", "eth0"})
	require.NoError(t, err)
	require.EqualValues(t, 4096, cfg.NFrames)
	require.EqualValues(t, 2048, cfg.FrameSize)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, time.Second, cfg.StatsInterval)
	require.True(t, cfg.NeedWakeup)
}

func TestCohortsPartitionsPortsContiguously(t *testing.T) {
	cfg := Config{
		CPUs: []int{0, 1},
		Ports: []PortSpec{
			{Interface: "eth0"}, {Interface: "eth1"},
			{Interface: "eth2"}, {Interface: "eth3"},
		},
	}
	cohorts := cfg.Cohorts()
	require.Len(t, cohorts, 2)
	require.Equal(t, []PortSpec{{Interface: "eth0"}, {Interface: "eth1"}}, cohorts[0])
	require.Equal(t, []PortSpec{{Interface: "eth2"}, {Interface: "eth3"}}, cohorts[1])
}
