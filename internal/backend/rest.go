package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/ayush/referral-rewards/backend/internal/models"
)

var (
	ErrMissingURL = errors.New("backend URL is required")
	ErrMissingKey = errors.New("backend API key is required")
)

// codeNoRows is what the REST layer reports when a single-object read
// matches zero or several rows.
const codeNoRows = "PGRST116"

const objectMediaType = "application/vnd.pgrst.object+json"

// RESTClient calls the hosted service's REST, RPC and auth endpoints
// through postgrest-go and gotrue-go. It is safe for concurrent use.
type RESTClient struct {
	baseURL   string
	apiKey    string
	transport http.RoundTripper
	timeout   time.Duration
	auth      gotrue.Client
}

// NewRESTClient builds a client for the project at baseURL. httpClient may be
// nil; its Transport and Timeout apply to every call.
func NewRESTClient(baseURL, apiKey string, httpClient *http.Client) (*RESTClient, error) {
	if baseURL == "" {
		return nil, ErrMissingURL
	}
	if apiKey == "" {
		return nil, ErrMissingKey
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	rt := httpClient.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &RESTClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		transport: rt,
		timeout:   httpClient.Timeout,
		auth:      gotrue.New("", apiKey).WithCustomGoTrueURL(baseURL + "/auth/v1"),
	}, nil
}

// exchange is the transport for a single call. It binds the caller's context
// to each request and keeps the decoded error body, which both client
// libraries reduce to a formatted string.
type exchange struct {
	ctx  context.Context
	base http.RoundTripper
	err  *Error
}

func (x *exchange) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(x.ctx)
	// Per-request headers are added ahead of the client defaults.
	for k, vals := range out.Header {
		if len(vals) > 1 {
			out.Header[k] = vals[:1]
		}
	}
	resp, err := x.base.RoundTrip(out)
	if err != nil || resp.StatusCode < http.StatusBadRequest {
		return resp, err
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	x.err = decodeError(resp.StatusCode, raw)
	return resp, nil
}

// result prefers the service's own error over whatever the library made of
// it, classifying the single-object failures as ErrNoRows / ErrMultipleRows.
func (x *exchange) result(op string, err error) error {
	if x.err != nil {
		return classify(x.err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *RESTClient) begin(ctx context.Context) (*exchange, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	return &exchange{ctx: ctx, base: c.transport}, cancel
}

// rest builds a postgrest client for one call. Clients are not shared
// because the bearer token differs per caller.
func (c *RESTClient) rest(x *exchange) (*postgrest.Client, error) {
	bearer := c.apiKey
	if tok, ok := AccessToken(x.ctx); ok {
		bearer = tok
	}
	pc := postgrest.NewClient(c.baseURL+"/rest/v1", "", map[string]string{
		"apikey":        c.apiKey,
		"Authorization": "Bearer " + bearer,
	})
	if pc.ClientError != nil {
		return nil, fmt.Errorf("rest client: %w", pc.ClientError)
	}
	pc.Transport.Parent = x
	return pc, nil
}

// Select implements Client. Two filters on the same column replace each
// other.
func (c *RESTClient) Select(ctx context.Context, table string, q Query, dst any) error {
	x, cancel := c.begin(ctx)
	defer cancel()
	pc, err := c.rest(x)
	if err != nil {
		return err
	}

	fb := pc.From(table).Select(selectExpr(q), "", false)
	for _, f := range q.Filters {
		fb = fb.Filter(f.Column, string(f.Op), formatValue(f.Value))
	}
	if q.Order != nil {
		fb = fb.Order(q.Order.Column, &postgrest.OrderOpts{Ascending: q.Order.Ascending})
	}
	if q.Single {
		fb = fb.Single()
	}

	body, _, err := fb.Execute()
	if err := x.result("select "+table, err); err != nil {
		return err
	}
	return decodeInto(body, dst, "select "+table)
}

// Insert implements Client.
func (c *RESTClient) Insert(ctx context.Context, table string, row Row, dst any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("insert %s: encode: %w", table, err)
	}
	x, cancel := c.begin(ctx)
	defer cancel()
	pc, err := c.rest(x)
	if err != nil {
		return err
	}

	returning := "minimal"
	if dst != nil {
		returning = "representation"
	}
	fb := pc.From(table).Insert(json.RawMessage(raw), false, "", returning, "")
	if dst != nil {
		fb = fb.Single()
	}

	body, _, err := fb.Execute()
	if err := x.result("insert "+table, err); err != nil {
		return err
	}
	return decodeInto(body, dst, "insert "+table)
}

// Update implements Client. At least one filter is required.
func (c *RESTClient) Update(ctx context.Context, table string, values Row, filters ...Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("update %s: refusing update without filters", table)
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("update %s: encode: %w", table, err)
	}
	x, cancel := c.begin(ctx)
	defer cancel()
	pc, err := c.rest(x)
	if err != nil {
		return err
	}

	fb := pc.From(table).Update(json.RawMessage(raw), "minimal", "")
	for _, f := range filters {
		fb = fb.Filter(f.Column, string(f.Op), formatValue(f.Value))
	}
	_, _, err = fb.Execute()
	return x.result("update "+table, err)
}

// Upsert implements Client.
func (c *RESTClient) Upsert(ctx context.Context, table string, row Row, onConflict string) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("upsert %s: encode: %w", table, err)
	}
	x, cancel := c.begin(ctx)
	defer cancel()
	pc, err := c.rest(x)
	if err != nil {
		return err
	}

	_, _, err = pc.From(table).Upsert(json.RawMessage(raw), onConflict, "minimal", "").Execute()
	return x.result("upsert "+table, err)
}

// RPC implements Client.
func (c *RESTClient) RPC(ctx context.Context, fn string, params Row, dst any) error {
	if params == nil {
		params = Row{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("rpc %s: encode: %w", fn, err)
	}
	x, cancel := c.begin(ctx)
	defer cancel()
	pc, err := c.rest(x)
	if err != nil {
		return err
	}

	out := pc.Rpc(fn, "", json.RawMessage(raw))
	if err := x.result("rpc "+fn, pc.ClientError); err != nil {
		return err
	}
	return decodeInto([]byte(out), dst, "rpc "+fn)
}

func sessionFrom(u types.User, s types.Session, now time.Time) *models.Session {
	out := &models.Session{
		Email:        u.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
	if u.ID != uuid.Nil {
		out.UserID = u.ID.String()
	}
	if s.ExpiresIn > 0 {
		out.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return out
}

// SignUp implements Authenticator. With e-mail confirmation enabled the
// service returns the user without tokens.
func (c *RESTClient) SignUp(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	x, cancel := c.begin(ctx)
	defer cancel()

	res, err := c.auth.WithClient(http.Client{Transport: x}).Signup(types.SignupRequest{
		Email:    creds.Email,
		Password: creds.Password,
		Data:     map[string]any{"full_name": creds.FullName},
	})
	if err := x.result("sign up", err); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	return sessionFrom(res.User, res.Session, time.Now()), nil
}

// SignIn implements Authenticator.
func (c *RESTClient) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	x, cancel := c.begin(ctx)
	defer cancel()

	res, err := c.auth.WithClient(http.Client{Transport: x}).SignInWithEmailPassword(email, password)
	if err := x.result("sign in", err); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return sessionFrom(res.User, res.Session, time.Now()), nil
}

func decodeInto(body []byte, dst any, op string) error {
	if dst == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func classify(apiErr *Error) error {
	if apiErr.Code == codeNoRows {
		if strings.Contains(apiErr.Details, " 0 rows") {
			return fmt.Errorf("%w: %w", ErrNoRows, apiErr)
		}
		return fmt.Errorf("%w: %w", ErrMultipleRows, apiErr)
	}
	return apiErr
}
// decodeError understands both the REST ({code,message,details,hint}) and
// the auth ({error_code,msg} / {error,error_description}) error bodies.
func decodeError(status int, raw []byte) *Error {
	var body struct {
		Code             json.RawMessage `json:"code"`
		Message          string          `json:"message"`
		Details          string          `json:"details"`
		Hint             string          `json:"hint"`
		ErrorCode        string          `json:"error_code"`
		Msg              string          `json:"msg"`
		ErrorName        string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	e := &Error{Status: status}
	if err := json.Unmarshal(raw, &body); err != nil {
		e.Message = strings.TrimSpace(string(raw))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	// code is a string for REST errors and a number for auth errors.
	var code string
	if json.Unmarshal(body.Code, &code) == nil {
		e.Code = code
	}
	e.Details, e.Hint = body.Details, body.Hint
	e.Message = firstNonEmpty(body.Message, body.Msg, body.ErrorDescription, http.StatusText(status))
	if e.Code == "" {
		e.Code = firstNonEmpty(body.ErrorCode, body.ErrorName)
	}
	return e
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func selectExpr(q Query) string {
	parts := []string{"*"}
	if len(q.Columns) > 0 {
		parts = append([]string(nil), q.Columns...)
	}
	for _, e := range q.Embeds {
		cols := "*"
		if len(e.Columns) > 0 {
			cols = strings.Join(e.Columns, ",")
		}
		parts = append(parts, fmt.Sprintf("%s:%s(%s)", e.Alias, e.Table, cols))
	}
	return strings.Join(parts, ",")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
