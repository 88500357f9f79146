package swagger

import (
	_ "embed"
	"net/http"
	"strings"
)

//go:embed openapi.yaml
var openAPIDoc []byte

// Document returns the embedded OpenAPI description of the checkout API.
func Document() []byte { return openAPIDoc }

// Handler serves the Swagger UI at prefix and the OpenAPI document at
// prefix + "/openapi.yaml". Mount it with http.StripPrefix(prefix, ...).
func Handler(prefix string) http.Handler {
	prefix = strings.TrimRight(prefix, "/")
	page := strings.Replace(swaggerUIHTML, "{{DOC_URL}}", prefix+"/openapi.yaml", 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openAPIDoc)
	})
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	return mux
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>movein checkout API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css">
  <style>
    body { margin: 0; padding: 0; }
    .swagger-ui .topbar { display: none; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      window.ui = SwaggerUIBundle({
        url: "{{DOC_URL}}",
        dom_id: '#swagger-ui',
        deepLinking: true,
        docExpansion: "list",
        filter: true,
        requestInterceptor: function(req) {
          var token = window.localStorage.getItem("movein-session");
          if (token) { req.headers["X-Session-Token"] = token; }
          return req;
        },
        responseInterceptor: function(res) {
          var token = res.headers["x-session-token"];
          if (token) { window.localStorage.setItem("movein-session", token); }
          return res;
        }
      });
    };
  </script>
</body>
</html>
`
