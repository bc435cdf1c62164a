// Package plan compiles a workflow graph into a dependency-ordered stage
// sequence. Every stage appears after all stages that feed one of its
// input ports, so the executor can run stages in list order under the
// bulk-synchronous model.
package plan

import (
	"fmt"
	"sort"

	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Stage is one compiled node stage: the node definition plus its resolved
// input ports and declared output edges.
type Stage struct {
	// Node is the node definition this stage executes.
	Node workflow.NodeDefinition
	// InputPorts are the distinct ports fed by upstream edges, in edge
	// declaration order. Empty for source nodes (direct-mode readers).
	InputPorts []string
	// OutputPorts are the node's declared output edges, in declaration
	// order. The first entry is the default routing destination.
	OutputPorts []workflow.OutputPort
	// Dependencies are the ids of nodes with an edge into this stage.
	Dependencies []string
}

// Plan is the compiled, immutable execution plan for one workflow.
type Plan struct {
	WorkflowId string
	Stages     []Stage
}

// StageFor returns the stage for a node id.
func (p *Plan) StageFor(nodeId string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Node.Id == nodeId {
			return s, true
		}
	}
	return Stage{}, false
}

// Compile validates the definition and produces a dependency-ordered plan.
// Duplicate node ids and cycles are configuration errors caught here, not
// at runtime.
func Compile(def *workflow.Definition) (*Plan, error) {
	if def == nil {
		return nil, enginerrors.NewConfigurationError("", "definition", "workflow definition cannot be nil")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	order, err := topologicalOrder(def)
	if err != nil {
		return nil, err
	}

	stages := make([]Stage, 0, len(order))
	byId := make(map[string]workflow.NodeDefinition, len(def.Nodes))
	for _, n := range def.Nodes {
		byId[n.Id] = n
	}

	for _, id := range order {
		stages = append(stages, Stage{
			Node:         byId[id],
			InputPorts:   def.InputPortsOf(id),
			OutputPorts:  def.OutputPortsOf(id),
			Dependencies: dependenciesOf(def, id),
		})
	}

	return &Plan{WorkflowId: def.Id, Stages: stages}, nil
}

// topologicalOrder runs Kahn's algorithm over the node/edge lists. Ready
// nodes are drained in sorted-id order so compilation is deterministic.
func topologicalOrder(def *workflow.Definition) ([]string, error) {
	indegree := make(map[string]int, len(def.Nodes))
	dependents := make(map[string][]string, len(def.Nodes))
	for _, n := range def.Nodes {
		indegree[n.Id] = 0
	}

	// Multiple edges between the same pair of nodes (distinct ports) only
	// count once for ordering.
	seenPair := make(map[string]bool)
	for _, e := range def.Edges {
		pair := e.SourceNodeId + "->" + e.TargetNodeId
		if seenPair[pair] {
			continue
		}
		seenPair[pair] = true
		indegree[e.TargetNodeId]++
		dependents[e.SourceNodeId] = append(dependents[e.SourceNodeId], e.TargetNodeId)
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		var ready []string
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(order) != len(def.Nodes) {
		return nil, fmt.Errorf("workflow %s: %w", def.Id, enginerrors.ErrCycle)
	}
	return order, nil
}

// dependenciesOf lists the distinct upstream node ids of a node.
func dependenciesOf(def *workflow.Definition, nodeId string) []string {
	var deps []string
	seen := make(map[string]bool)
	for _, e := range def.Edges {
		if e.TargetNodeId == nodeId && !seen[e.SourceNodeId] {
			seen[e.SourceNodeId] = true
			deps = append(deps, e.SourceNodeId)
		}
	}
	return deps
}
