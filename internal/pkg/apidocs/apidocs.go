// Package apidocs finds and checks the OpenAPI document served under /docs/api.
package apidocs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/getkin/kin-openapi/openapi3"
)

// DocPath is the document location relative to the project root.
const DocPath = "public/docs/v1/openapi.yml"

// basePaths covers starting from the project root, cmd/<name> and package tests.
var basePaths = []string{"./", "../../", "../../../"}

// Locate returns the path of the OpenAPI document, or "" when it is not found.
func Locate() string {
	for _, base := range basePaths {
		p := filepath.Join(base, DocPath)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load parses the document at path and validates it.
func Load(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// Operation names one documented method and path, with the path in fiber syntax.
type Operation struct {
	Method string
	Path   string
}

// Operations lists every documented operation, prefixed with the server base path.
func Operations(doc *openapi3.T) []Operation {
	base := ""
	if len(doc.Servers) > 0 {
		base = doc.Servers[0].URL
	}
	var out []Operation
	for _, path := range doc.Paths.InMatchingOrder() {
		item := doc.Paths.Value(path)
		for method := range item.Operations() {
			out = append(out, Operation{Method: method, Path: base + FiberPath(path)})
		}
	}
	return out
}

// FiberPath rewrites OpenAPI parameters ({id}) into fiber parameters (:id).
func FiberPath(p string) string {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '{':
			out = append(out, ':')
		case '}':
		default:
			out = append(out, p[i])
		}
	}
	return string(out)
}
