// Package backend talks to the hosted Postgres service that owns every row
// this application reads or writes.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayush/referral-rewards/backend/internal/models"
)

// Client defines the data-access contract the stores rely on. Results are
// decoded into dst the way encoding/json would decode the row objects.
type Client interface {
	Select(ctx context.Context, table string, q Query, dst any) error
	// Insert adds one row. When dst is non-nil the inserted row is decoded
	// into it.
	Insert(ctx context.Context, table string, row Row, dst any) error
	Update(ctx context.Context, table string, values Row, filters ...Filter) error
	// Upsert inserts row or merges it into the row that conflicts on
	// onConflict.
	Upsert(ctx context.Context, table string, row Row, onConflict string) error
	// RPC invokes a stored procedure with named parameters. dst may be nil
	// when the return value is not needed.
	RPC(ctx context.Context, fn string, params Row, dst any) error
}

// Authenticator signs users up and in against the service's auth provider.
type Authenticator interface {
	SignUp(ctx context.Context, creds models.Credentials) (*models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
}

// Row is a column-name to value mapping.
type Row map[string]any

// Operator is a filter comparison.
type Operator string

const (
	OpEq  Operator = "eq"
	OpGte Operator = "gte"
)

// Filter restricts a query to rows where Column Op Value holds.
type Filter struct {
	Column string
	Op     Operator
	Value  any
}

// Eq is shorthand for an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// Gte is shorthand for a greater-or-equal filter.
func Gte(column string, value any) Filter {
	return Filter{Column: column, Op: OpGte, Value: value}
}

// Order sorts the result set.
type Order struct {
	Column    string
	Ascending bool
}

// Embed pulls rows of a related table into each result under Alias. The
// related table references the parent's id through Column.
type Embed struct {
	Alias   string
	Table   string
	Column  string
	Columns []string
}

// Query describes a read.
type Query struct {
	Columns []string // empty means all
	Embeds  []Embed
	Filters []Filter
	Order   *Order
	// Single expects exactly one row and decodes it as an object.
	Single bool
}

// ErrNoRows is returned by single-row reads that matched nothing.
var ErrNoRows = errors.New("backend: no rows returned")

// ErrMultipleRows is returned by single-row reads that matched more than one row.
var ErrMultipleRows = errors.New("backend: multiple rows returned")

// Error is a failure reported by the service itself.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		fmt.Fprintf(&b, "%s: ", e.Code)
	}
	b.WriteString(e.Message)
	if e.Details != "" {
		fmt.Fprintf(&b, " (%s)", e.Details)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " [status %d]", e.Status)
	}
	return b.String()
}

type accessTokenKey struct{}

// WithAccessToken attaches an end-user token that REST calls made with ctx
// authenticate as.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the token set by WithAccessToken.
func AccessToken(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(accessTokenKey{}).(string)
	return tok, ok && tok != ""
}
