package handlers

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"
)

const swaggerVersion = "5.10.0"

var swaggerPage = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@{{.Version}}/swagger-ui.css">
    <style>
        body { margin: 0; padding: 0; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@{{.Version}}/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: {{.SpecURL}},
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis]
            });
        };
    </script>
</body>
</html>`))

const specURL = "/api/docs/openapi.json"

// SwaggerUI serves an interactive page for /api/docs/openapi.json
func SwaggerUI(w http.ResponseWriter, r *http.Request) {
	var page bytes.Buffer
	err := swaggerPage.Execute(&page, struct {
		Title   string
		Version string
		SpecURL template.JS
	}{
		Title:   "Forest Forecast Index API",
		Version: swaggerVersion,
		SpecURL: template.JS(strconv.Quote(specURL)),
	})
	if err != nil {
		http.Error(w, "failed to render API docs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page.Bytes())
}
