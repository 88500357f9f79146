package swagger

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesUIAndDocument(t *testing.T) {
	h := http.StripPrefix("/swagger", Handler("/swagger/"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ui: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `url: "/swagger/openapi.yaml"`) {
		t.Errorf("ui page does not point at the document: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/openapi.yaml", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("doc: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("doc content type = %q", ct)
	}
	if rec.Body.Len() != len(Document()) {
		t.Errorf("doc body differs from embedded document")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path: expected 404, got %d", rec.Code)
	}
}

func TestDocumentCoversCheckoutRoutes(t *testing.T) {
	doc := string(Document())
	for _, path := range []string{
		"/api/checkout:",
		"/api/checkout/address/search:",
		"/api/checkout/meter/confirm:",
		"/api/checkout/plans/{service}/select:",
		"/api/checkout/usage:",
		"/api/checkout/documents/{id}:",
		"/api/checkout/submit:",
		"/api/plans:",
		"/api/orders/{id}:",
		"X-Session-Token",
	} {
		if !strings.Contains(doc, path) {
			t.Errorf("document is missing %s", path)
		}
	}
}
