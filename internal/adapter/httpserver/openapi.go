package httpserver

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openapiSpec []byte

// ValidateOpenAPI parses and validates the embedded contract at
// startup so a malformed spec fails fast instead of silently being
// served broken (§2 domain stack: OpenAPI contract).
func ValidateOpenAPI() error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return fmt.Errorf("op=httpserver.validate_openapi: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("op=httpserver.validate_openapi: %w", err)
	}
	return nil
}

// ServeOpenAPI serves the embedded, already-validated contract.
func ServeOpenAPI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapiSpec)
	}
}
