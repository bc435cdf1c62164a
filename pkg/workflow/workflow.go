// Package workflow defines the workflow graph consumed by the plan
// compiler: typed nodes with a raw JSON config document, connected by
// directed edges between named ports.
package workflow

import (
	"encoding/json"
	"fmt"

	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
)

// DefaultPort is the conventional name of a node's primary port.
const DefaultPort = "out"

// NodeDefinition describes one node of a workflow graph. Identity is the
// Id; Type selects the registered behavior; Config is the node-specific
// configuration document, decoded and validated once before execution.
type NodeDefinition struct {
	Id     string          `json:"id"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Edge is a directed binding from one node's output port to another node's
// input port. Edges are immutable once the plan is compiled, and the order
// in which a node declares its edges is semantically significant: the
// first declared edge is the default routing destination.
type Edge struct {
	SourceNodeId string `json:"sourceNodeId"`
	SourcePort   string `json:"sourcePort"`
	TargetNodeId string `json:"targetNodeId"`
	TargetPort   string `json:"targetPort"`
}

// OutputPort is an edge as seen from its source node: the declared output
// binding used by port resolution.
type OutputPort struct {
	SourcePort   string `json:"sourcePort"`
	TargetNodeId string `json:"targetNodeId"`
	TargetPort   string `json:"targetPort"`
}

// Definition is a complete workflow graph.
type Definition struct {
	Id    string           `json:"id"`
	Name  string           `json:"name,omitempty"`
	Nodes []NodeDefinition `json:"nodes"`
	Edges []Edge           `json:"edges"`
}

// Validate checks structural invariants that must hold before planning:
// node ids are unique and non-empty, every node has a type, and every edge
// references known nodes. Acyclicity is checked by the plan compiler.
func (d *Definition) Validate() error {
	if len(d.Nodes) == 0 {
		return enginerrors.NewConfigurationError(d.Id, "nodes", "workflow has no nodes")
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.Id == "" {
			return enginerrors.NewConfigurationError(d.Id, "nodes", "node id cannot be empty")
		}
		if n.Type == "" {
			return enginerrors.NewConfigurationError(n.Id, "type", "node type cannot be empty")
		}
		if seen[n.Id] {
			return fmt.Errorf("workflow %s: node %q: %w", d.Id, n.Id, enginerrors.ErrDuplicateNode)
		}
		seen[n.Id] = true
	}

	for i, e := range d.Edges {
		if !seen[e.SourceNodeId] {
			return enginerrors.NewConfigurationError(d.Id, fmt.Sprintf("edges[%d]", i),
				fmt.Sprintf("unknown source node %q", e.SourceNodeId))
		}
		if !seen[e.TargetNodeId] {
			return enginerrors.NewConfigurationError(d.Id, fmt.Sprintf("edges[%d]", i),
				fmt.Sprintf("unknown target node %q", e.TargetNodeId))
		}
	}
	return nil
}

// OutputPortsOf returns the output ports a node declares, preserving the
// edge declaration order from the source graph.
func (d *Definition) OutputPortsOf(nodeId string) []OutputPort {
	var ports []OutputPort
	for _, e := range d.Edges {
		if e.SourceNodeId == nodeId {
			ports = append(ports, OutputPort{
				SourcePort:   e.SourcePort,
				TargetNodeId: e.TargetNodeId,
				TargetPort:   e.TargetPort,
			})
		}
	}
	return ports
}

// InputPortsOf returns the distinct input ports feeding a node, in the
// order the incoming edges declare them.
func (d *Definition) InputPortsOf(nodeId string) []string {
	var ports []string
	seen := make(map[string]bool)
	for _, e := range d.Edges {
		if e.TargetNodeId == nodeId && !seen[e.TargetPort] {
			seen[e.TargetPort] = true
			ports = append(ports, e.TargetPort)
		}
	}
	return ports
}
