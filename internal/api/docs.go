package api

import (
    _ "embed"
    "encoding/json"
    "net/http"
    "sync"

    yaml "gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

var (
    openAPIOnce sync.Once
    openAPIJSON []byte
    openAPIErr  error
)

func openAPILoadJSON() ([]byte, error) {
    openAPIOnce.Do(func() {
        var obj map[string]any
        if openAPIErr = yaml.Unmarshal(openAPIYAML, &obj); openAPIErr != nil { return }
        openAPIJSON, openAPIErr = json.Marshal(obj)
    })
    return openAPIJSON, openAPIErr
}

// OpenAPIHandler serves the OpenAPI document as written.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "application/yaml")
    w.WriteHeader(200)
    _, _ = w.Write(openAPIYAML)
}

// OpenAPIJSONHandler serves the same document converted to JSON.
func (s *Server) OpenAPIJSONHandler(w http.ResponseWriter, r *http.Request) {
    b, err := openAPILoadJSON()
    if err != nil { writeProblem(w, 500, "OpenAPI parse failed", err.Error(), r.URL.Path); return }
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(200)
    _, _ = w.Write(b)
}

// DocsHandler serves a minimal ReDoc page referencing /openapi.json
func (s *Server) DocsHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    w.WriteHeader(200)
    _, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>Drone Fleet Planner API</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
    </head><body>
    <redoc spec-url="/openapi.json"></redoc>
    </body></html>`))
}
