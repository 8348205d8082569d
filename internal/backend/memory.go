package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayush/referral-rewards/backend/internal/models"
)

// MemoryClient is an in-memory implementation of Client and Authenticator
// used for unit testing stores and handlers without a running service.
type MemoryClient struct {
	mu      sync.Mutex
	tables  map[string][]Row
	rpcs    map[string]RPCFunc
	users   map[string]memoryUser
	calls   []Call
	err     error
	lastNow time.Time
}

// RPCFunc serves a stored procedure in a MemoryClient.
type RPCFunc func(params Row) (any, error)

// Call captures one operation executed against the client.
type Call struct {
	Op     string
	Table  string
	Query  Query
	Row    Row
	Filter []Filter
}

type memoryUser struct {
	id       string
	password string
}

// NewMemoryClient instantiates an empty in-memory backend.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		tables: make(map[string][]Row),
		rpcs:   make(map[string]RPCFunc),
		users:  make(map[string]memoryUser),
	}
}

// WithError configures the client to return err for subsequent calls.
func (m *MemoryClient) WithError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// HandleRPC registers fn as the stored procedure name.
func (m *MemoryClient) HandleRPC(name string, fn RPCFunc) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rpcs[name] = fn
	return m
}

// Seed appends rows to table as-is.
func (m *MemoryClient) Seed(table string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], cloneRow(r))
	}
}

// Rows returns a snapshot of table.
func (m *MemoryClient) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, cloneRow(r))
	}
	return out
}

// Calls returns a snapshot of executed operations.
func (m *MemoryClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Select implements Client.
func (m *MemoryClient) Select(_ context.Context, table string, q Query, dst any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "select", Table: table, Query: q})
	if m.err != nil {
		return m.err
	}

	var matched []Row
	for _, r := range m.tables[table] {
		if matches(r, q.Filters) {
			matched = append(matched, r)
		}
	}
	if q.Order != nil {
		col, asc := q.Order.Column, q.Order.Ascending
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][col], matched[j][col])
			if asc {
				return c < 0
			}
			return c > 0
		})
	}

	out := make([]Row, 0, len(matched))
	for _, r := range matched {
		doc := project(r, q.Columns)
		for _, e := range q.Embeds {
			related := make([]Row, 0)
			for _, child := range m.tables[e.Table] {
				if compare(child[e.Column], r["id"]) == 0 && child[e.Column] != nil {
					related = append(related, project(child, e.Columns))
				}
			}
			doc[e.Alias] = related
		}
		out = append(out, doc)
	}

	if !q.Single {
		return decode(out, dst)
	}
	switch len(out) {
	case 0:
		return fmt.Errorf("%w: %w", ErrNoRows, &Error{Status: 406, Code: codeNoRows, Message: "JSON object requested, multiple (or no) rows returned", Details: "The result contains 0 rows"})
	case 1:
		return decode(out[0], dst)
	default:
		return ErrMultipleRows
	}
}

// Insert implements Client.
func (m *MemoryClient) Insert(_ context.Context, table string, row Row, dst any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "insert", Table: table, Row: cloneRow(row)})
	if m.err != nil {
		return m.err
	}

	stored := m.insertLocked(table, row)
	if dst == nil {
		return nil
	}
	return decode(stored, dst)
}

// Update implements Client.
func (m *MemoryClient) Update(_ context.Context, table string, values Row, filters ...Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "update", Table: table, Row: cloneRow(values), Filter: filters})
	if m.err != nil {
		return m.err
	}
	if len(filters) == 0 {
		return fmt.Errorf("update %s: refusing update without filters", table)
	}

	for _, r := range m.tables[table] {
		if matches(r, filters) {
			for k, v := range values {
				r[k] = v
			}
		}
	}
	return nil
}

// Upsert implements Client.
func (m *MemoryClient) Upsert(_ context.Context, table string, row Row, onConflict string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "upsert", Table: table, Row: cloneRow(row)})
	if m.err != nil {
		return m.err
	}

	if onConflict == "" {
		onConflict = "id"
	}
	for _, r := range m.tables[table] {
		if compare(r[onConflict], row[onConflict]) == 0 {
			for k, v := range row {
				r[k] = v
			}
			return nil
		}
	}
	m.insertLocked(table, row)
	return nil
}

// RPC implements Client.
func (m *MemoryClient) RPC(_ context.Context, fn string, params Row, dst any) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Op: "rpc", Table: fn, Row: cloneRow(params)})
	err := m.err
	handler, ok := m.rpcs[fn]
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return &Error{Status: 404, Code: "PGRST202", Message: "Could not find the function " + fn}
	}
	res, err := handler(params)
	if err != nil {
		return err
	}
	if dst == nil {
		return nil
	}
	return decode(res, dst)
}

// SignUp implements Authenticator, creating the profile row as well.
func (m *MemoryClient) SignUp(_ context.Context, creds models.Credentials) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	email := strings.ToLower(creds.Email)
	if _, exists := m.users[email]; exists {
		return nil, &Error{Status: 422, Code: "user_already_exists", Message: "User already registered"}
	}

	id := uuid.NewString()
	m.users[email] = memoryUser{id: id, password: creds.Password}
	m.insertLocked("profiles", Row{"id": id, "full_name": creds.FullName})
	return &models.Session{UserID: id, Email: email, AccessToken: "token-" + id}, nil
}

// SignIn implements Authenticator.
func (m *MemoryClient) SignIn(_ context.Context, email, password string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	email = strings.ToLower(email)
	u, ok := m.users[email]
	if !ok || u.password != password {
		return nil, ErrInvalidCredentials
	}
	return &models.Session{UserID: u.id, Email: email, AccessToken: "token-" + u.id}, nil
}

func (m *MemoryClient) insertLocked(table string, row Row) Row {
	stored := cloneRow(row)
	if _, ok := stored["id"]; !ok {
		stored["id"] = uuid.NewString()
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = m.nowLocked()
	}
	m.tables[table] = append(m.tables[table], stored)
	return cloneRow(stored)
}

// nowLocked is strictly increasing so created_at ordering is deterministic.
func (m *MemoryClient) nowLocked() time.Time {
	now := time.Now().UTC()
	if !now.After(m.lastNow) {
		now = m.lastNow.Add(time.Microsecond)
	}
	m.lastNow = now
	return now
}

func matches(r Row, filters []Filter) bool {
	for _, f := range filters {
		v, ok := r[f.Column]
		if !ok {
			return false
		}
		c := compare(v, f.Value)
		switch f.Op {
		case OpEq:
			if c != 0 {
				return false
			}
		case OpGte:
			if c < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders times, numbers and everything else by string form.
func compare(a, b any) int {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	}
	return 0, false
}

func project(r Row, columns []string) Row {
	if len(columns) == 0 {
		return cloneRow(r)
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func cloneRow(src Row) Row {
	if src == nil {
		return nil
	}
	dst := make(Row, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func decode(v any, dst any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
