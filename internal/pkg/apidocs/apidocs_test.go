package apidocs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentIsValid(t *testing.T) {
	path := Locate()
	require.NotEmpty(t, path, "openapi document not found")

	doc, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "CloserDesk API", doc.Info.Title)

	ops := Operations(doc)
	assert.Contains(t, ops, Operation{Method: "POST", Path: "/api/v1/public/leads"})
	assert.Contains(t, ops, Operation{Method: "PATCH", Path: "/api/v1/appointments/:id/status"})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), "does-not-exist.yml")
	assert.Error(t, err)
}

func TestFiberPath(t *testing.T) {
	assert.Equal(t, "/leads/:id/summary", FiberPath("/leads/{id}/summary"))
	assert.Equal(t, "/slots", FiberPath("/slots"))
}
