package models

import "time"

// TimeSeriesPoint is a single timestamped sample.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// NodeMetrics is the recorded history of one node, keyed by its address.
type NodeMetrics struct {
	NodeID   string            `json:"nodeId"`
	NodeName string            `json:"nodeName"`
	CPU      []TimeSeriesPoint `json:"cpu"`
	Memory   []TimeSeriesPoint `json:"memory"`
	Network  []TimeSeriesPoint `json:"network"`
}

// SystemMetrics is an aggregate snapshot of the tracked fleet.
type SystemMetrics struct {
	TotalNodes     int       `json:"totalNodes"`
	OnlineNodes    int       `json:"onlineNodes"`
	AverageCPU     float64   `json:"averageCpu"`
	AverageMemory  float64   `json:"averageMemory"`
	AverageNetwork float64   `json:"averageNetwork"`
	Timestamp      time.Time `json:"timestamp"`
}

// SystemStatus is the live fleet summary pushed to stream clients.
type SystemStatus SystemMetrics

// HealthStatus is the overall fleet health classification.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// SystemHealth is the result of a fleet health check.
type SystemHealth struct {
	Status    HealthStatus `json:"status"`
	Issues    []string     `json:"issues"`
	Timestamp time.Time    `json:"timestamp"`
}
