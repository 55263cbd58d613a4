package router

import (
	"os"
	"path/filepath"

	"ironflex/backend/pkg/validator"
)

// AddOpenAPIValidation validates /api requests against the schema and serves
// the schema file under /api/docs
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.LogError(err, "Failed to initialize OpenAPI validator", "path", schemaPath)
		return
	}

	r.Engine.Use(v.Middleware())
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath, "title", v.Title())

	r.Engine.StaticFile("/api/docs/"+filepath.Base(schemaPath), schemaPath)
}
