package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
)

// ArchivedResult is the document written for one terminal node's output.
type ArchivedResult struct {
	WorkflowId  string           `json:"workflowId"`
	ExecutionId string           `json:"executionId"`
	NodeId      string           `json:"nodeId"`
	Status      string           `json:"status"`
	RecordCount int              `json:"recordCount"`
	ArchivedAt  time.Time        `json:"archivedAt"`
	Records     []*record.Record `json:"records"`
}

// Archive persists terminal node output as one JSON blob per node under
// workflows/<workflowId>/executions/<executionId>/. It implements the
// engine's result archiver.
type Archive struct {
	client BlobClient
	logger *zap.Logger
	now    func() time.Time
}

var _ engine.ResultArchiver = (*Archive)(nil)

// NewArchive creates an archive over a blob client.
func NewArchive(client BlobClient, logger *zap.Logger) (*Archive, error) {
	if client == nil {
		return nil, fmt.Errorf("blob client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{client: client, logger: logger, now: time.Now}, nil
}

// ArchiveNodeResult uploads the node's output batch.
func (a *Archive) ArchiveNodeResult(ctx context.Context, workflowId, executionId, nodeId, status string, output []*record.Record) error {
	doc := ArchivedResult{
		WorkflowId:  workflowId,
		ExecutionId: executionId,
		NodeId:      nodeId,
		Status:      status,
		RecordCount: len(output),
		ArchivedAt:  a.now().UTC(),
		Records:     output,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal archived result: %w", err)
	}

	path := ResultBlobPath(workflowId, executionId, nodeId)
	url, err := a.client.Upload(ctx, path, data, map[string]string{
		"workflow_id":  workflowId,
		"execution_id": executionId,
		"node_id":      nodeId,
		"status":       status,
	})
	if err != nil {
		return err
	}

	a.logger.Debug("archived node result",
		zap.String("node_id", nodeId),
		zap.String("blob_url", url),
		zap.Int("records", len(output)))
	return nil
}

// LoadNodeResult downloads and decodes one archived node result.
func (a *Archive) LoadNodeResult(ctx context.Context, workflowId, executionId, nodeId string) (*ArchivedResult, error) {
	data, err := a.client.Download(ctx, ResultBlobPath(workflowId, executionId, nodeId))
	if err != nil {
		return nil, err
	}
	var doc ArchivedResult
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode archived result: %w", err)
	}
	return &doc, nil
}

// ResultBlobPath returns the container-relative path of one node's
// archived result.
func ResultBlobPath(workflowId, executionId, nodeId string) string {
	return fmt.Sprintf("workflows/%s/executions/%s/%s.json", workflowId, executionId, nodeId)
}
