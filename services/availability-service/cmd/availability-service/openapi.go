package main

import (
	"embed"
	"net/http"
)

//go:embed assets/availability.v1.yaml
var openAPISpec embed.FS

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	data, err := openAPISpec.ReadFile("assets/availability.v1.yaml")
	if err != nil {
		http.Error(w, "openapi not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(data)
}
