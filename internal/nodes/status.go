package nodes

import (
	"fmt"
	"math"
	"time"

	"github.com/narvanalabs/fleet-monitor/internal/models"
)

// Load thresholds used by the fleet health check.
const (
	HighCPUThreshold     = 80.0
	HighMemoryThreshold  = 85.0
	HighNetworkThreshold = 90.0
)

const healthyIssue = "All systems operating normally"

// Status summarises the fleet. Averages are taken over every node, online or
// not, and rounded to two decimals. An empty fleet reports zero averages.
func Status(nodes []models.Node, now time.Time) models.SystemStatus {
	status := models.SystemStatus{
		TotalNodes: len(nodes),
		Timestamp:  now,
	}
	if len(nodes) == 0 {
		return status
	}

	var cpu, mem, net float64
	for _, n := range nodes {
		if n.Online() {
			status.OnlineNodes++
		}
		cpu += n.Load.CPU
		mem += n.Load.Memory
		net += n.Load.Network
	}
	count := float64(len(nodes))
	status.AverageCPU = round2(cpu / count)
	status.AverageMemory = round2(mem / count)
	status.AverageNetwork = round2(net / count)
	return status
}

// Health classifies the fleet. Each check that finds affected nodes adds one
// issue and raises the overall status; the result is the worst level seen.
// A later, milder check never lowers the level an earlier one set, so an
// all-offline fleet with one busy node stays critical rather than warning.
func Health(nodes []models.Node, now time.Time) models.SystemHealth {
	health := models.SystemHealth{
		Status:    models.HealthHealthy,
		Issues:    []string{},
		Timestamp: now,
	}

	var offline, highCPU, highMem, highNet int
	for _, n := range nodes {
		if !n.Online() {
			offline++
		}
		if n.Load.CPU > HighCPUThreshold {
			highCPU++
		}
		if n.Load.Memory > HighMemoryThreshold {
			highMem++
		}
		if n.Load.Network > HighNetworkThreshold {
			highNet++
		}
	}

	total := len(nodes)
	if offline > 0 {
		health.Issues = append(health.Issues, fmt.Sprintf("%d node(s) are offline", offline))
		if offline == total {
			health.Status = worse(health.Status, models.HealthCritical)
		} else {
			health.Status = worse(health.Status, models.HealthWarning)
		}
	}

	loadChecks := []struct {
		count int
		issue string
	}{
		{highCPU, "%d node(s) have high CPU usage (>80%%)"},
		{highMem, "%d node(s) have high memory usage (>85%%)"},
		{highNet, "%d node(s) have high network usage (>90%%)"},
	}
	for _, c := range loadChecks {
		if c.count == 0 {
			continue
		}
		health.Issues = append(health.Issues, fmt.Sprintf(c.issue, c.count))
		if float64(c.count) > float64(total)/2 {
			health.Status = worse(health.Status, models.HealthCritical)
		} else {
			health.Status = worse(health.Status, models.HealthWarning)
		}
	}

	if len(health.Issues) == 0 {
		health.Issues = append(health.Issues, healthyIssue)
	}
	return health
}

func severityRank(s models.HealthStatus) int {
	switch s {
	case models.HealthCritical:
		return 2
	case models.HealthWarning:
		return 1
	default:
		return 0
	}
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	if severityRank(b) > severityRank(a) {
		return b
	}
	return a
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
