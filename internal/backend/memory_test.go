package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayush/referral-rewards/backend/internal/models"
)

func TestMemoryClient_SelectFiltersOrderAndEmbeds(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()
	now := time.Now().UTC()

	m.Seed("invite_links",
		Row{"id": "l1", "creator_id": "u1", "code": "AAAAAA", "expires_at": now.Add(time.Hour), "created_at": now.Add(-2 * time.Hour)},
		Row{"id": "l2", "creator_id": "u1", "code": "BBBBBB", "expires_at": now.Add(time.Hour), "created_at": now.Add(-time.Hour)},
		Row{"id": "l3", "creator_id": "u2", "code": "CCCCCC", "expires_at": now.Add(time.Hour), "created_at": now},
	)
	m.Seed("profiles",
		Row{"id": "p1", "full_name": "Ann", "invite_link_id": "l1", "created_at": now},
		Row{"id": "p2", "full_name": "Bob", "created_at": now},
	)

	var links []models.InviteLink
	err := m.Select(ctx, "invite_links", Query{
		Embeds:  []Embed{{Alias: "invitees", Table: "profiles", Column: "invite_link_id", Columns: []string{"id", "full_name", "created_at"}}},
		Filters: []Filter{Eq("creator_id", "u1")},
		Order:   &Order{Column: "created_at"},
	}, &links)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(links) != 2 || links[0].ID != "l2" || links[1].ID != "l1" {
		t.Fatalf("unexpected order %+v", links)
	}
	if len(links[1].Invitees) != 1 || links[1].Invitees[0].FullName != "Ann" {
		t.Fatalf("unexpected invitees %+v", links[1].Invitees)
	}
	if len(links[0].Invitees) != 0 {
		t.Fatalf("expected no invitees for l2, got %+v", links[0].Invitees)
	}
}

func TestMemoryClient_GteOnRFC3339Strings(t *testing.T) {
	m := NewMemoryClient()
	now := time.Now().UTC()
	m.Seed("invite_links", Row{"code": "OLD000", "expires_at": now.Add(-time.Minute)})

	var out models.InviteLink
	err := m.Select(context.Background(), "invite_links", Query{
		Filters: []Filter{Eq("code", "OLD000"), Gte("expires_at", now.Format(time.RFC3339Nano))},
		Single:  true,
	}, &out)
	if !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestMemoryClient_UpsertAndUpdate(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	if err := m.Upsert(ctx, "user_points", Row{"user_id": "u1", "points": 5}, "user_id"); err != nil {
		t.Fatal(err)
	}
	if err := m.Upsert(ctx, "user_points", Row{"user_id": "u1", "points": 9}, "user_id"); err != nil {
		t.Fatal(err)
	}
	rows := m.Rows("user_points")
	if len(rows) != 1 || rows[0]["points"] != 9 {
		t.Fatalf("expected merged row, got %+v", rows)
	}

	if err := m.Update(ctx, "user_points", Row{"points": 1}, Eq("user_id", "nobody")); err != nil {
		t.Fatal(err)
	}
	if m.Rows("user_points")[0]["points"] != 9 {
		t.Fatal("update touched a non-matching row")
	}
}

func TestMemoryClient_RPCAndErrors(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	var apiErr *Error
	if err := m.RPC(ctx, "missing", nil, nil); !errors.As(err, &apiErr) || apiErr.Code != "PGRST202" {
		t.Fatalf("expected function-not-found error, got %v", err)
	}

	m.HandleRPC("double", func(p Row) (any, error) { return p["n"].(int) * 2, nil })
	var n int
	if err := m.RPC(ctx, "double", Row{"n": 21}, &n); err != nil || n != 42 {
		t.Fatalf("unexpected rpc result %d %v", n, err)
	}

	boom := errors.New("boom")
	m.WithError(boom)
	if err := m.Insert(ctx, "audit_logs", Row{}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected forced error, got %v", err)
	}
	if got := len(m.Calls()); got != 3 {
		t.Fatalf("expected 3 recorded calls, got %d", got)
	}
}

func TestMemoryClient_Auth(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	sess, err := m.SignUp(ctx, models.Credentials{Email: "Jane@example.com", Password: "Abcdefg1", FullName: "Jane"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if len(m.Rows("profiles")) != 1 {
		t.Fatal("expected profile row")
	}
	if _, err := m.SignUp(ctx, models.Credentials{Email: "jane@example.com", Password: "x"}); err == nil {
		t.Fatal("expected duplicate sign up error")
	}

	got, err := m.SignIn(ctx, "jane@example.com", "Abcdefg1")
	if err != nil || got.UserID != sess.UserID {
		t.Fatalf("sign in: %+v %v", got, err)
	}
	if _, err := m.SignIn(ctx, "jane@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
