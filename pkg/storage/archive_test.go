package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
)

type fakeBlobClient struct {
	blobs    map[string][]byte
	metadata map[string]map[string]string
	failWith error
}

func newFakeBlobClient() *fakeBlobClient {
	return &fakeBlobClient{
		blobs:    make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func (f *fakeBlobClient) Upload(_ context.Context, path string, data []byte, metadata map[string]string) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	f.blobs[path] = data
	f.metadata[path] = metadata
	return "https://fake.blob/" + path, nil
}

func (f *fakeBlobClient) Download(_ context.Context, path string) ([]byte, error) {
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", path)
	}
	return data, nil
}

func TestResultBlobPath(t *testing.T) {
	assert.Equal(t,
		"workflows/wf-1/executions/exec-1/sink.json",
		ResultBlobPath("wf-1", "exec-1", "sink"))
}

func TestArchiveNodeResult(t *testing.T) {
	client := newFakeBlobClient()
	archive, err := NewArchive(client, zap.NewNop())
	require.NoError(t, err)
	archive.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	output := []*record.Record{
		record.FromPairs("id", 1, "name", "alpha"),
		record.FromPairs("id", 2, "name", "beta"),
	}
	err = archive.ArchiveNodeResult(context.Background(), "wf-1", "exec-1", "sink", "completed", output)
	require.NoError(t, err)

	path := ResultBlobPath("wf-1", "exec-1", "sink")
	require.Contains(t, client.blobs, path)
	assert.Equal(t, map[string]string{
		"workflow_id":  "wf-1",
		"execution_id": "exec-1",
		"node_id":      "sink",
		"status":       "completed",
	}, client.metadata[path])

	var doc ArchivedResult
	require.NoError(t, json.Unmarshal(client.blobs[path], &doc))
	assert.Equal(t, "wf-1", doc.WorkflowId)
	assert.Equal(t, "exec-1", doc.ExecutionId)
	assert.Equal(t, "sink", doc.NodeId)
	assert.Equal(t, "completed", doc.Status)
	assert.Equal(t, 2, doc.RecordCount)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), doc.ArchivedAt)
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "alpha", doc.Records[0].Value("name"))
}

func TestArchiveNodeResultUploadFailure(t *testing.T) {
	client := newFakeBlobClient()
	client.failWith = fmt.Errorf("boom")
	archive, err := NewArchive(client, zap.NewNop())
	require.NoError(t, err)

	err = archive.ArchiveNodeResult(context.Background(), "wf", "exec", "n", "completed", nil)
	assert.Error(t, err)
}

func TestLoadNodeResultRoundTrip(t *testing.T) {
	client := newFakeBlobClient()
	archive, err := NewArchive(client, zap.NewNop())
	require.NoError(t, err)

	output := []*record.Record{record.FromPairs("total", 42.5)}
	require.NoError(t, archive.ArchiveNodeResult(context.Background(), "wf", "exec", "sum", "completed", output))

	doc, err := archive.LoadNodeResult(context.Background(), "wf", "exec", "sum")
	require.NoError(t, err)
	assert.Equal(t, "sum", doc.NodeId)
	require.Len(t, doc.Records, 1)
	// Record decoding keeps numerics as json.Number to avoid float drift.
	assert.Equal(t, json.Number("42.5"), doc.Records[0].Value("total"))
}

func TestLoadNodeResultMissing(t *testing.T) {
	archive, err := NewArchive(newFakeBlobClient(), zap.NewNop())
	require.NoError(t, err)

	_, err = archive.LoadNodeResult(context.Background(), "wf", "exec", "nope")
	assert.Error(t, err)
}

func TestNewArchiveRequiresClient(t *testing.T) {
	_, err := NewArchive(nil, zap.NewNop())
	assert.Error(t, err)
}
