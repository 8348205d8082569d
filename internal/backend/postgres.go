package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/referral-rewards/backend/internal/models"
)

// ErrInvalidCredentials is returned by SignIn for an unknown e-mail or a
// wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Querier is the subset of *pgxpool.Pool the Postgres client needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresClient implements Client and Authenticator directly against the
// service's Postgres schema, for self-hosted deployments.
type PostgresClient struct {
	db Querier
}

func NewPostgresClient(db Querier) *PostgresClient {
	return &PostgresClient{db: db}
}

// Migrate creates the tables and stored procedures if they don't exist.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Select implements Client.
func (c *PostgresClient) Select(ctx context.Context, table string, q Query, dst any) error {
	sql, args := buildSelect(table, q)

	var raw []byte
	if err := c.db.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		return pgError(err)
	}
	if !q.Single {
		return json.Unmarshal(raw, dst)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return err
	}
	switch len(rows) {
	case 0:
		return ErrNoRows
	case 1:
		return json.Unmarshal(rows[0], dst)
	default:
		return ErrMultipleRows
	}
}

// Insert implements Client.
func (c *PostgresClient) Insert(ctx context.Context, table string, row Row, dst any) error {
	sql, args := buildInsert(table, row, dst != nil)
	if dst == nil {
		_, err := c.db.Exec(ctx, sql, args...)
		return pgError(err)
	}

	var raw []byte
	if err := c.db.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		return pgError(err)
	}
	return json.Unmarshal(raw, dst)
}

// Update implements Client. At least one filter is required.
func (c *PostgresClient) Update(ctx context.Context, table string, values Row, filters ...Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("update %s: refusing update without filters", table)
	}
	if len(values) == 0 {
		return fmt.Errorf("update %s: no values", table)
	}
	sql, args := buildUpdate(table, values, filters)
	_, err := c.db.Exec(ctx, sql, args...)
	return pgError(err)
}

// Upsert implements Client.
func (c *PostgresClient) Upsert(ctx context.Context, table string, row Row, onConflict string) error {
	if onConflict == "" {
		return fmt.Errorf("upsert %s: conflict column is required", table)
	}
	sql, args := buildUpsert(table, row, onConflict)
	_, err := c.db.Exec(ctx, sql, args...)
	return pgError(err)
}

// RPC implements Client.
func (c *PostgresClient) RPC(ctx context.Context, fn string, params Row, dst any) error {
	call, args := buildCall(fn, params)
	if dst == nil {
		_, err := c.db.Exec(ctx, "SELECT "+call, args...)
		return pgError(err)
	}

	var raw []byte
	if err := c.db.QueryRow(ctx, "SELECT to_jsonb("+call+")", args...).Scan(&raw); err != nil {
		return pgError(err)
	}
	return json.Unmarshal(raw, dst)
}

// SignUp implements Authenticator. The auth row and the profile are created
// in one statement.
func (c *PostgresClient) SignUp(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	var s models.Session
	err = c.db.QueryRow(ctx, `
		WITH u AS (
			INSERT INTO auth_users (email, password_hash) VALUES ($1, $2)
			RETURNING id, email
		), p AS (
			INSERT INTO profiles (id, full_name) SELECT id, $3 FROM u
		)
		SELECT id::text, email FROM u`,
		strings.ToLower(creds.Email), string(hash), creds.FullName,
	).Scan(&s.UserID, &s.Email)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", pgError(err))
	}
	return &s, nil
}

// SignIn implements Authenticator.
func (c *PostgresClient) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	var (
		s    models.Session
		hash string
	)
	err := c.db.QueryRow(ctx,
		`SELECT id::text, email, password_hash FROM auth_users WHERE email = $1`,
		strings.ToLower(email),
	).Scan(&s.UserID, &s.Email, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", pgError(err))
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &s, nil
}

// pgError converts server-side failures into *Error so callers see the same
// shape as from the REST client.
func pgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}
	return err
}

func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type argList []any

func (a *argList) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

func objectExpr(alias string, columns []string) string {
	if len(columns) == 0 {
		return "to_jsonb(" + alias + ")"
	}
	pairs := make([]string, 0, len(columns))
	for _, col := range columns {
		pairs = append(pairs, fmt.Sprintf("'%s', %s.%s", strings.ReplaceAll(col, "'", "''"), alias, ident(col)))
	}
	return "jsonb_build_object(" + strings.Join(pairs, ", ") + ")"
}

func whereClause(alias string, filters []Filter, args *argList) string {
	if len(filters) == 0 {
		return ""
	}
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		op := "="
		if f.Op == OpGte {
			op = ">="
		}
		conds = append(conds, fmt.Sprintf("%s.%s %s %s", alias, ident(f.Column), op, args.add(f.Value)))
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func buildSelect(table string, q Query) (string, []any) {
	var args argList

	doc := objectExpr("p", q.Columns)
	for _, e := range q.Embeds {
		doc += fmt.Sprintf(
			" || jsonb_build_object('%s', (SELECT coalesce(jsonb_agg(%s), '[]'::jsonb) FROM %s e WHERE e.%s = p.\"id\"))",
			e.Alias, objectExpr("e", e.Columns), ident(e.Table), ident(e.Column),
		)
	}

	over := ""
	if q.Order != nil {
		dir := "DESC"
		if q.Order.Ascending {
			dir = "ASC"
		}
		over = fmt.Sprintf("ORDER BY p.%s %s", ident(q.Order.Column), dir)
	}

	inner := fmt.Sprintf("SELECT %s AS doc, row_number() OVER (%s) AS ord FROM %s p%s",
		doc, over, ident(table), whereClause("p", q.Filters, &args))
	if q.Single {
		inner += " LIMIT 2"
	}
	return "SELECT coalesce(jsonb_agg(s.doc ORDER BY s.ord), '[]'::jsonb) FROM (" + inner + ") s", args
}

func buildInsert(table string, row Row, returning bool) (string, []any) {
	var args argList
	keys := sortedKeys(row)
	cols := make([]string, len(keys))
	vals := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = ident(k)
		vals[i] = args.add(row[k])
	}
	sql := fmt.Sprintf("INSERT INTO %s AS p (%s) VALUES (%s)", ident(table), strings.Join(cols, ", "), strings.Join(vals, ", "))
	if returning {
		sql += " RETURNING to_jsonb(p)"
	}
	return sql, args
}

func buildUpsert(table string, row Row, onConflict string) (string, []any) {
	sql, args := buildInsert(table, row, false)

	var sets []string
	for _, k := range sortedKeys(row) {
		if k == onConflict {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(k), ident(k)))
	}
	if len(sets) == 0 {
		return sql + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", ident(onConflict)), args
	}
	return sql + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", ident(onConflict), strings.Join(sets, ", ")), args
}

func buildUpdate(table string, values Row, filters []Filter) (string, []any) {
	var args argList
	keys := sortedKeys(values)
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = %s", ident(k), args.add(values[k]))
	}
	sql := fmt.Sprintf("UPDATE %s AS p SET %s%s", ident(table), strings.Join(sets, ", "), whereClause("p", filters, &args))
	return sql, args
}

func buildCall(fn string, params Row) (string, []any) {
	var args argList
	keys := sortedKeys(params)
	named := make([]string, len(keys))
	for i, k := range keys {
		named[i] = fmt.Sprintf("%s => %s", ident(k), args.add(params[k]))
	}
	return fmt.Sprintf("%s(%s)", ident(fn), strings.Join(named, ", ")), args
}
