package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lensfeed/internal/config"
	"lensfeed/internal/lens"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

// Client is the HTTP implementation of lens.Gateway. It reads the bearer
// token from its TokenSource on every request and runs the session-expired
// handler whenever an authenticated request comes back 401.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     lens.TokenSource
	onExpired  lens.SessionExpiredHandler
	logger     lens.Logger
}

var _ lens.Gateway = (*Client)(nil)

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client, tokens lens.TokenSource, onExpired lens.SessionExpiredHandler, logger lens.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		onExpired:  onExpired,
		logger:     logger,
	}
}

// NewClientFromConfig validates the API config and creates a Client.
func NewClientFromConfig(cfg config.APIConfig, tokens lens.TokenSource, onExpired lens.SessionExpiredHandler, logger lens.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base_url must be http or https, got %q", cfg.BaseURL)
	}
	return NewClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout()}, tokens, onExpired, logger), nil
}

// request describes one call to the backend.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	header      http.Header
	// public requests carry no bearer token and a 401 from them is not a
	// session expiry.
	public bool
	// allowEmpty accepts an empty 2xx body, leaving out untouched.
	allowEmpty bool
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return bytes.NewReader(b), nil
}

// do sends r and decodes a JSON response into out (if non-nil).
// Transport errors are returned unmodified.
func (c *Client) do(ctx context.Context, r request, out any) error {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return fmt.Errorf("building request %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if !r.public && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("backend response", "method", r.method, "path", r.path, "status", resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized && !r.public {
		c.logger.Warn("unauthorized response, ending session", "path", r.path)
		if c.onExpired != nil {
			c.onExpired(ctx)
		}
		return &lens.SessionExpiredError{Path: r.path}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if r.allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decoding %s response: %w", r.path, err)
	}
	return nil
}

// statusError builds a *lens.StatusError, pulling a message out of the body
// when the server sent one.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &payload) == nil {
		msg = payload.Message
		if msg == "" {
			msg = payload.Error
		}
	}
	return &lens.StatusError{Code: resp.StatusCode, Message: msg}
}

// Login implements lens.AuthGateway.
func (c *Client) Login(ctx context.Context, email, password string) (*lens.AuthResult, error) {
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	var res lens.AuthResult
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        body,
		contentType: "application/json",
		public:      true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Signup implements lens.AuthGateway.
func (c *Client) Signup(ctx context.Context, username, email, password string) (*lens.AuthResult, error) {
	body, err := jsonBody(map[string]string{"username": username, "email": email, "password": password})
	if err != nil {
		return nil, err
	}

	var res lens.AuthResult
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/signup",
		body:        body,
		contentType: "application/json",
		public:      true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Me implements lens.AuthGateway.
func (c *Client) Me(ctx context.Context) (*lens.User, error) {
	var res struct {
		User *lens.User `json:"user"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me"}, &res); err != nil {
		return nil, err
	}
	if res.User == nil {
		return nil, errors.New("/auth/me response has no user")
	}
	return res.User, nil
}

// Feed implements lens.Gateway. Empty filter fields are left out of the query.
func (c *Client) Feed(ctx context.Context, page int, filters *lens.FeedFilters) ([]lens.Post, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if filters != nil {
		setIf(q, "q", filters.Q)
		setIf(q, "location", filters.Location)
		setIf(q, "tag", filters.Tag)
		setIf(q, "type", string(filters.Type))
		setIf(q, "username", filters.Username)
	}

	var res struct {
		Posts []lens.Post `json:"posts"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/feed", query: q}, &res); err != nil {
		return nil, err
	}
	if res.Posts == nil {
		return []lens.Post{}, nil
	}
	return res.Posts, nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// ToggleLike implements lens.Gateway. The response body is discarded.
func (c *Client) ToggleLike(ctx context.Context, postID string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/posts/" + url.PathEscape(postID) + "/like",
	}, nil)
}

// AddComment implements lens.Gateway.
func (c *Client) AddComment(ctx context.Context, postID, text string) (*lens.Comment, error) {
	body, err := jsonBody(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	var res struct {
		Comment *lens.Comment `json:"comment"`
	}
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/posts/" + url.PathEscape(postID) + "/comments",
		body:        body,
		contentType: "application/json",
		allowEmpty:  true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Comment, nil
}

// UploadMedia implements lens.Gateway. The multipart body is streamed from
// file without buffering it in memory.
func (c *Client) UploadMedia(ctx context.Context, up lens.UploadRequest, file io.Reader) (*lens.Post, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, up, file))
	}()

	var res struct {
		Post *lens.Post `json:"post"`
	}
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/media/upload",
		body:        pr,
		contentType: mw.FormDataContentType(),
		allowEmpty:  true,
	}, &res)
	// Unblock the writer if the request ended before the body was consumed.
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return nil, err
	}
	return res.Post, nil
}

func writeUploadForm(mw *multipart.Writer, up lens.UploadRequest, file io.Reader) error {
	part, err := mw.CreateFormFile("file", up.FileName)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}

	fields := []struct{ name, value string }{
		{"title", up.Title},
		{"caption", up.Caption},
		{"location", up.Location},
		{"tags", up.Tags},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("writing %s field: %w", f.name, err)
		}
	}
	return mw.Close()
}

// CreateCreator implements lens.Gateway. The admin secret is the credential,
// so the request is sent without the session token.
func (c *Client) CreateCreator(ctx context.Context, account lens.CreatorAccount, adminSecret string) (*lens.User, error) {
	body, err := jsonBody(account)
	if err != nil {
		return nil, err
	}

	var res struct {
		User *lens.User `json:"user"`
	}
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/admin/create-creator",
		body:        body,
		contentType: "application/json",
		header:      http.Header{"X-Admin-Secret": []string{adminSecret}},
		public:      true,
		allowEmpty:  true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.User, nil
}
