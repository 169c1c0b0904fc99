package models

import "time"

// NodeType is the traffic category a node serves.
type NodeType string

const (
	NodeTypeVoice NodeType = "voice"
	NodeTypeData  NodeType = "data"
)

// NodeStatus is the liveness of a node.
type NodeStatus string

const (
	NodeStatusOnline  NodeStatus = "online"
	NodeStatusOffline NodeStatus = "offline"
)

// NodeLoad holds utilisation percentages in the range [0, 100].
type NodeLoad struct {
	CPU     float64 `json:"cpu"`
	Memory  float64 `json:"memory"`
	Network float64 `json:"network"`
}

// Node represents a simulated monitored endpoint.
type Node struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	IP          string     `json:"ip"`
	Type        NodeType   `json:"type"`
	Status      NodeStatus `json:"status"`
	Load        NodeLoad   `json:"load"`
	Tags        []string   `json:"tags,omitempty"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

// Online reports whether the node is online.
func (n Node) Online() bool {
	return n.Status == NodeStatusOnline
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	if n.Tags != nil {
		n.Tags = append([]string(nil), n.Tags...)
	}
	return n
}

// Clamp bounds a percentage to [0, 100].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
