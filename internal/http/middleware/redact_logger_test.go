package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"":                                        "",
		"email=ana@example.com":                   "email=[REDACTED:email]",
		"email=ana%40example.com":                 "email=[REDACTED:email]",
		"token=abc123&page=2":                     "token=[REDACTED]&page=2",
		"share_token=zz":                          "share_token=[REDACTED]",
		"id=3f2504e0-4f89-41d3-9a0c-0305e82c3301": "id=[REDACTED:id]",
		"call 212-555-1212":                       "call [REDACTED:phone]",
	}
	for in, want := range cases {
		if got := redact(in); got != want {
			t.Fatalf("redact(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactingLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/robots/:name/invites/check", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/robots/alpha/invites/check?email=ana@example.com", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Api-Key", "k")
	req.Header.Set("X-Note", "ping ana@example.com")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "ana@example.com") || strings.Contains(out, "secret") {
		t.Fatalf("PII leaked into log: %s", out)
	}
	var line struct {
		Level   string            `json:"level"`
		Status  int               `json:"status"`
		Query   string            `json:"query"`
		Headers map[string]string `json:"headers"`
		ReqID   string            `json:"request_id"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line.Level != "warn" || line.Status != 404 || line.ReqID == "" {
		t.Fatalf("line = %+v", line)
	}
	if line.Headers["Authorization"] != "[REDACTED]" || line.Headers["X-Api-Key"] != "[REDACTED]" {
		t.Fatalf("headers = %v", line.Headers)
	}
	if line.Query != "email=[REDACTED:email]" {
		t.Fatalf("query = %q", line.Query)
	}
}

func TestRedactingLogger_ErrorLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(Logger(), RedactingLogger(RedactOptions{}))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(http.ErrHandlerTimeout)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("gin errors should log at error: %s", buf.String())
	}
}
