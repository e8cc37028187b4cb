package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/traderobots-backend/internal/auth"
	"github.com/tbourn/traderobots-backend/internal/config"
	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/http/middleware"
	"github.com/tbourn/traderobots-backend/internal/repo"
	"github.com/tbourn/traderobots-backend/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type app struct {
	t      *testing.T
	r      *gin.Engine
	db     *gorm.DB
	tokens map[string]string
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      100,
		IdempotencyTTL: time.Hour,
		SwaggerEnabled: true,
		Analysis:       config.AnalysisConfig{MaxUpload: 1 << 10},
		OTEL:           config.OTELConfig{ServiceName: "router-test"},
	}
}

func newApp(t *testing.T, cfg config.Config) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	v, err := auth.NewVerifier("router-secret", "", nil)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	tokens := map[string]string{}
	for id, email := range map[string]string{"owner": "owner@example.com", "ana": "ana@example.com"} {
		tok, err := v.Issue(domain.Principal{UserID: id, Email: email}, time.Hour)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		tokens[id] = tok
	}

	r := gin.New()
	RegisterRoutes(r, Deps{
		DB:       db,
		Verifier: v,
		Robots:   &services.RobotService{DB: db},
		Sharing:  services.NewSharingService(db, services.WithAppBaseURL("https://app.test")),
		Accounts: &services.AccountService{DB: db},
		Analyses: services.NewAnalysisService(db, nil),
	}, cfg)
	return &app{t: t, r: r, db: db, tokens: tokens}
}

func (a *app) do(method, path, user string, body string, hdr map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := a.tokens[user]; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestRegisterRoutes_PublicEndpoints(t *testing.T) {
	a := newApp(t, testConfig())

	w := a.do(http.MethodGet, "/health", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing: %v", w.Header())
	}

	w = a.do(http.MethodGet, "/metrics", "", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics: code=%d", w.Code)
	}

	w = a.do(http.MethodGet, "/swagger/doc.json", "", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/robots/{name}/invites") {
		t.Fatalf("swagger doc: code=%d body=%.200s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_SwaggerDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = false
	a := newApp(t, cfg)

	if w := a.do(http.MethodGet, "/swagger/doc.json", "", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off, got %d", w.Code)
	}
}

func TestRegisterRoutes_Fallbacks(t *testing.T) {
	a := newApp(t, testConfig())

	w := a.do(http.MethodGet, "/nope", "", "", nil)
	var e struct{ Code, RequestID string }
	decode(t, w, &e)
	if w.Code != http.StatusNotFound || e.Code != "not_found" {
		t.Fatalf("NoRoute: %d %+v", w.Code, e)
	}

	w = a.do(http.MethodPut, "/health", "", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("NoMethod: %d", w.Code)
	}
}

func TestRegisterRoutes_APIRequiresBearer(t *testing.T) {
	a := newApp(t, testConfig())

	w := a.do(http.MethodGet, "/api/v1/robots", "", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
	w = a.do(http.MethodGet, "/api/v1/robots", "", "", map[string]string{"Authorization": "Bearer garbage"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 for bad token, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORS(t *testing.T) {
	a := newApp(t, testConfig())
	w := a.do(http.MethodOptions, "/api/v1/robots", "", "", map[string]string{
		"Origin":                         "https://ui.example.com",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Authorization, Idempotency-Key",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO = %q", got)
	}

	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://ui.example.com"}
	a = newApp(t, cfg)
	w = a.do(http.MethodGet, "/health", "", "", map[string]string{"Origin": "https://ui.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example.com" {
		t.Fatalf("allowlisted ACAO = %q", got)
	}
	w = a.do(http.MethodGet, "/health", "", "", map[string]string{"Origin": "https://evil.example.com"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign origin = %d", w.Code)
	}
}

func TestRegisterRoutes_InviteLifecycle(t *testing.T) {
	a := newApp(t, testConfig())

	if w := a.do(http.MethodPost, "/api/v1/robots", "owner", `{"name":"alpha"}`, nil); w.Code != http.StatusCreated {
		t.Fatalf("create robot = %d %s", w.Code, w.Body.String())
	}

	key := map[string]string{middleware.HeaderIdempotencyKey: "invite-1"}
	w := a.do(http.MethodPost, "/api/v1/robots/alpha/invites", "owner", `{"email":"Ana@Example.com"}`, key)
	if w.Code != http.StatusCreated {
		t.Fatalf("create invite = %d %s", w.Code, w.Body.String())
	}
	var created services.CreateInviteResult
	decode(t, w, &created)
	if created.Invite.Email != "ana@example.com" || created.Invite.Permission != domain.PermissionView {
		t.Fatalf("invite = %+v", created.Invite)
	}
	if created.Link != "https://app.test/robots/alpha" {
		t.Fatalf("link = %q", created.Link)
	}

	// Retried with the same key: same invite, no new row.
	w = a.do(http.MethodPost, "/api/v1/robots/alpha/invites", "owner", `{"email":"ana@example.com"}`, key)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d %v", w.Code, w.Header())
	}
	var replayed services.CreateInviteResult
	decode(t, w, &replayed)
	if replayed.Invite.ID != created.Invite.ID {
		t.Fatalf("replay returned %s, want %s", replayed.Invite.ID, created.Invite.ID)
	}
	var n int64
	a.db.Model(&domain.Invite{}).Count(&n)
	if n != 1 {
		t.Fatalf("invites stored = %d", n)
	}

	// Recipient sees it, accepts it, and the robot shows up as shared.
	w = a.do(http.MethodGet, "/api/v1/invites/pending", "ana", "", nil)
	var pending struct {
		Invites []domain.PendingInvite `json:"invites"`
	}
	decode(t, w, &pending)
	if len(pending.Invites) != 1 || pending.Invites[0].InviterEmail != "owner@example.com" {
		t.Fatalf("pending = %+v", pending)
	}

	w = a.do(http.MethodPost, "/api/v1/invites/"+created.Invite.ID+"/accept", "ana", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept = %d %s", w.Code, w.Body.String())
	}

	w = a.do(http.MethodGet, "/api/v1/shared-robots", "ana", "", nil)
	var shared struct {
		Grants []domain.SharedRobot `json:"grants"`
	}
	decode(t, w, &shared)
	if len(shared.Grants) != 1 || shared.Grants[0].RobotName != "alpha" {
		t.Fatalf("shared = %+v", shared)
	}

	// Accepting again conflicts; the owner cannot accept on the recipient's behalf.
	if w := a.do(http.MethodPost, "/api/v1/invites/"+created.Invite.ID+"/accept", "ana", "", nil); w.Code != http.StatusConflict {
		t.Fatalf("second accept = %d", w.Code)
	}
	if w := a.do(http.MethodPost, "/api/v1/invites/"+created.Invite.ID+"/accept", "owner", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("owner accept = %d", w.Code)
	}

	// Only the owner sees the robot's invites.
	if w := a.do(http.MethodGet, "/api/v1/robots/alpha/invites", "ana", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-owner list = %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotencyIsScopedPerRobot(t *testing.T) {
	a := newApp(t, testConfig())
	for _, name := range []string{"alpha", "beta"} {
		a.do(http.MethodPost, "/api/v1/robots", "owner", fmt.Sprintf(`{"name":%q}`, name), nil)
	}
	key := map[string]string{middleware.HeaderIdempotencyKey: "same-key"}
	for _, name := range []string{"alpha", "beta"} {
		w := a.do(http.MethodPost, "/api/v1/robots/"+name+"/invites", "owner", `{"email":"ana@example.com"}`, key)
		if w.Code != http.StatusCreated {
			t.Fatalf("%s: %d %s", name, w.Code, w.Body.String())
		}
	}
}

func TestRegisterRoutes_BodyLimits(t *testing.T) {
	a := newApp(t, testConfig())

	big := fmt.Sprintf(`{"name":"x","description":%q}`, strings.Repeat("a", defaultBodyLimit))
	if w := a.do(http.MethodPost, "/api/v1/robots", "owner", big, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("oversized JSON = %d", w.Code)
	}

	var buf bytes.Buffer
	buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"r.html\"\r\n\r\n")
	buf.WriteString(strings.Repeat("x", 200<<10))
	buf.WriteString("\r\n--b--\r\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/backtest", &buf)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	req.Header.Set("Authorization", "Bearer "+a.tokens["owner"])
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload = %d %s", w.Code, w.Body.String())
	}
}

func TestLimitBody_RouteOverride(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(4, map[string]int64{"/big/:id": 16}))
	read := func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.String(http.StatusOK, "%d", len(b))
	}
	r.POST("/small", read)
	r.POST("/big/:id", read)

	for path, want := range map[string]int{"/small": http.StatusRequestEntityTooLarge, "/big/1": http.StatusOK} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader("0123456789")))
		if w.Code != want {
			t.Fatalf("%s = %d, want %d", path, w.Code, want)
		}
	}
}

func TestUploadLimitAndJoinPath(t *testing.T) {
	if got := uploadLimit(0); got != 10<<20+multipartSlack {
		t.Fatalf("uploadLimit(0) = %d", got)
	}
	if got := uploadLimit(100); got != 100+multipartSlack {
		t.Fatalf("uploadLimit(100) = %d", got)
	}
	if joinPath("/", "/x") != "/x" || joinPath("/api/v1", "/x") != "/api/v1/x" {
		t.Fatalf("joinPath mismatch")
	}
}
