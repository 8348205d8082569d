package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/ipinfo"
	"github.com/ayush/referral-rewards/backend/internal/logging"
	"github.com/ayush/referral-rewards/backend/internal/models"
	"github.com/ayush/referral-rewards/backend/internal/store"
)

type staticIP string

func (s staticIP) Resolve(context.Context) ipinfo.Result { return ipinfo.Result{IP: string(s)} }

func newTestSessions(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewSessionStore(rdb), mr
}

func newTestHandler(t *testing.T) (*Handler, *backend.MemoryClient, *SessionStore) {
	t.Helper()
	mem := backend.NewMemoryClient()
	sessions, _ := newTestSessions(t)
	s := store.New(mem, staticIP("203.0.113.9"), logging.Discard())
	return NewHandler(mem, s, sessions, logging.Discard()), mem, sessions
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestSessionStore_RoundTripAndExpiry(t *testing.T) {
	sessions, mr := newTestSessions(t)
	ctx := context.Background()

	sid, err := sessions.Create(ctx, &models.Session{UserID: "u1", Email: "jane@example.com", AccessToken: "jwt"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := sessions.Get(ctx, sid)
	if err != nil || got == nil {
		t.Fatalf("get: %+v %v", got, err)
	}
	if got.UserID != "u1" || got.AccessToken != "jwt" {
		t.Fatalf("unexpected session %+v", got)
	}

	mr.FastForward(SessionTTL + time.Second)
	got, err = sessions.Get(ctx, sid)
	if err != nil || got != nil {
		t.Fatalf("expected expired session, got %+v %v", got, err)
	}
}

func TestSessionStore_Delete(t *testing.T) {
	sessions, _ := newTestSessions(t)
	ctx := context.Background()

	sid, err := sessions.Create(ctx, &models.Session{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := sessions.Delete(ctx, sid); err != nil {
		t.Fatal(err)
	}
	if got, _ := sessions.Get(ctx, sid); got != nil {
		t.Fatalf("expected deleted session, got %+v", got)
	}
}

func TestRegister(t *testing.T) {
	h, mem, sessions := newTestHandler(t)

	body := `{"email":"jane@example.com","password":"Abcdefg1","full_name":"Jane"}`
	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	sess, err := sessions.Get(context.Background(), sessionCookie(t, rec).Value)
	if err != nil || sess == nil || sess.Email != "jane@example.com" {
		t.Fatalf("expected stored session, got %+v %v", sess, err)
	}

	audits := mem.Rows("audit_logs")
	if len(audits) != 1 || audits[0]["action"] != "user_registered" || audits[0]["user_id"] != sess.UserID {
		t.Fatalf("unexpected audit rows %+v", audits)
	}

	rec = httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}
}

func TestRegister_WithInviteCode(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	ctx := context.Background()
	link, err := store.New(mem, nil, logging.Discard()).GenerateInviteLink(ctx, "referrer")
	if err != nil {
		t.Fatalf("generate invite: %v", err)
	}

	body := `{"email":"sam@example.com","password":"Abcdefg1","full_name":"Sam","invite_code":"` + link.Code + `"}`
	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var profile backend.Row
	for _, p := range mem.Rows("profiles") {
		if p["id"] == resp.UserID {
			profile = p
		}
	}
	if profile == nil || profile["invite_link_id"] != link.ID {
		t.Fatalf("expected profile linked to invite %s, got %+v", link.ID, profile)
	}

	audits := mem.Rows("audit_logs")
	details, _ := audits[len(audits)-1]["details"].(models.Details)
	if details["invite_code"] != link.Code {
		t.Errorf("expected invite code in audit details, got %+v", audits[len(audits)-1])
	}
}

func TestRegister_UnknownInviteCode(t *testing.T) {
	h, mem, _ := newTestHandler(t)

	body := `{"email":"sam@example.com","password":"Abcdefg1","full_name":"Sam","invite_code":"NOPE00"}`
	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"field":"invite_code"`) {
		t.Errorf("expected invite_code violation, got %s", rec.Body.String())
	}
	if len(mem.Rows("profiles")) != 0 {
		t.Fatal("account created despite unknown invite")
	}
}

func TestRegister_ValidationFailure(t *testing.T) {
	h, mem, _ := newTestHandler(t)

	body := `{"email":"not-an-email","password":"short","full_name":"J"}`
	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp struct {
		Violations []struct {
			Field string `json:"field"`
		} `json:"violations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	fields := map[string]bool{}
	for _, v := range resp.Violations {
		fields[v.Field] = true
	}
	if !fields["email"] || !fields["password"] || !fields["full_name"] {
		t.Fatalf("expected violations on every field, got %+v", resp.Violations)
	}
	if len(mem.Calls()) != 0 {
		t.Fatal("sign up attempted with invalid input")
	}
}

func TestLoginLogoutMe(t *testing.T) {
	h, _, sessions := newTestHandler(t)

	reg := `{"email":"jane@example.com","password":"Abcdefg1","full_name":"Jane"}`
	h.Register(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(reg)))

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"jane@example.com","password":"wrong"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"jane@example.com","password":"Abcdefg1"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cookie := sessionCookie(t, rec)

	sess, _ := sessions.Get(context.Background(), cookie.Value)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(WithSession(req.Context(), sess))
	rec = httptest.NewRecorder()
	h.Me(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var p models.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil || p.FullName != "Jane" {
		t.Fatalf("unexpected profile %+v %v", p, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.Logout(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got, _ := sessions.Get(context.Background(), cookie.Value); got != nil {
		t.Fatal("session survived logout")
	}
}

func TestMe_Unauthenticated(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestClientInfo(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:51234"
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Referer", "https://app.example.com/invite")

	got := ClientInfo(req)
	if got.IP != "198.51.100.4" || got.UserAgent != "test-agent" || got.PageURL != "https://app.example.com/invite" {
		t.Fatalf("unexpected client info %+v", got)
	}
}

func TestClientInfo_NonPublicPeerLeavesIPEmpty(t *testing.T) {
	cases := []struct {
		remote string
		want   string
	}{
		{"127.0.0.1:8080", ""},
		{"[::1]:8080", ""},
		{"10.0.0.7:443", ""},
		{"192.168.1.20:5000", ""},
		{"172.16.4.4:80", ""},
		{"169.254.0.1:80", ""},
		{"[::ffff:10.1.2.3]:80", ""},
		{"not-an-address", ""},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"198.51.100.4", "198.51.100.4"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		if got := ClientInfo(req).IP; got != tc.want {
			t.Errorf("%s: want %q got %q", tc.remote, tc.want, got)
		}
	}
}
