package wechat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/fightinglucida/FastMP/pkg/errors"
	"github.com/fightinglucida/FastMP/pkg/fingerprint"
	"github.com/fightinglucida/FastMP/pkg/logger"
)

// Client talks to the MP platform. A fresh client starts an anonymous
// cookie session for the login handshake; a client built from stored
// cookies replays an authenticated session for listing calls.
type Client struct {
	httpClient  *http.Client
	headers     map[string]string
	baseURL     string
	fingerprint string
	logger      logger.Logger
}

// NewClient creates a client with an empty cookie jar for a new login handshake.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if baseURL == "" {
		baseURL = BaseURL
	}

	jar, _ := cookiejar.New(nil)

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
			"Referer":         baseURL + "/",
			"Origin":          baseURL,
		},
		baseURL:     baseURL,
		fingerprint: fingerprint.New(),
		logger:      log,
	}
}

// NewClientFromCookies creates a client that replays a stored cookie header.
// Used for listing calls made with a previously harvested credential.
func NewClientFromCookies(baseURL string, cookieHeader string, timeout time.Duration, log logger.Logger) *Client {
	c := NewClient(baseURL, timeout, log)
	c.headers["Cookie"] = cookieHeader
	c.httpClient.Jar = nil
	return c
}

// Fingerprint returns the request-signature token attached to listing calls.
func (c *Client) Fingerprint() string {
	return c.fingerprint
}

// SetFingerprint overrides the request-signature token.
func (c *Client) SetFingerprint(fp string) {
	c.fingerprint = fp
}

// RegenerateFingerprint discards the current token and mints a fresh one.
func (c *Client) RegenerateFingerprint() string {
	c.fingerprint = fingerprint.New()
	c.logger.DebugWithFields("regenerated fingerprint", map[string]interface{}{
		"fingerprint": c.fingerprint,
	})
	return c.fingerprint
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.New(errors.ErrorTypeNetwork, 0, "network error: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// Get performs a GET request to the specified URL
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	return c.doRequest(req)
}

// PostForm performs a POST request with a urlencoded body
func (c *Client) PostForm(ctx context.Context, url string, body string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return c.doRequest(req)
}

// readBody drains and closes a response body after status checking.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}
	return body, nil
}

// getJSON performs a GET request and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}

	body, err := c.readBody(resp)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errors.New(errors.ErrorTypeParsing, 0, "failed to parse JSON: %v", err)
	}

	return nil
}

// checkResponseStatus checks the HTTP response status and returns appropriate errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.WarnWithFields("credential rejected", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.New(errors.ErrorTypeExpired, resp.StatusCode, "credential rejected by provider")
	case http.StatusNotFound:
		return errors.New(errors.ErrorTypeNotFound, resp.StatusCode, "resource not found")
	case http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.New(errors.ErrorTypeRateLimit, resp.StatusCode, "rate limit exceeded")
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return errors.New(errors.ErrorTypeServerError, resp.StatusCode, "server error")
	default:
		if resp.StatusCode >= 400 {
			if errors.IsRetryableStatusCode(resp.StatusCode) {
				return errors.New(errors.ErrorTypeServerError, resp.StatusCode, "server error: %d", resp.StatusCode)
			}
			return errors.New(errors.ErrorTypeUnknown, resp.StatusCode, "unexpected status code: %d", resp.StatusCode)
		}
		return nil
	}
}

// checkBaseResp maps the vendor result code to the error taxonomy.
func (c *Client) checkBaseResp(br BaseResp, op string) error {
	switch br.Ret {
	case 0:
		return nil
	case RetFingerprintRejected:
		c.logger.WarnWithFields("fingerprint rejected by provider", map[string]interface{}{
			"operation": op,
			"ret":       br.Ret,
		})
		return errors.New(errors.ErrorTypeFingerprint, br.Ret, "fingerprint rejected during %s", op)
	default:
		return errors.New(errors.ErrorTypeUnknown, br.Ret, "%s failed: %s", op, br.ErrMsg)
	}
}

// OpenLoginSession warms the anonymous cookie session and opens a QR handshake.
func (c *Client) OpenLoginSession(ctx context.Context) error {
	// The landing page seeds the anonymous cookies the handshake needs.
	resp, err := c.Get(ctx, c.baseURL+"/")
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	postResp, err := c.PostForm(ctx, c.baseURL+StartLoginEndpoint, startLoginBody())
	if err != nil {
		return err
	}

	body, err := c.readBody(postResp)
	if err != nil {
		return err
	}

	var start StartLoginResponse
	if err := json.Unmarshal(body, &start); err != nil {
		return errors.New(errors.ErrorTypeParsing, 0, "failed to parse handshake response: %v", err)
	}
	return c.checkBaseResp(start.BaseResp, "startlogin")
}

// FetchQRCode downloads the QR image bytes for the open handshake.
func (c *Client) FetchQRCode(ctx context.Context) ([]byte, error) {
	resp, err := c.Get(ctx, qrCodeURL(c.baseURL))
	if err != nil {
		return nil, err
	}

	data, err := c.readBody(resp)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New(errors.ErrorTypeHandshake, 0, "empty QR code response")
	}

	c.logger.DebugWithFields("fetched QR code", map[string]interface{}{
		"size": len(data),
	})
	return data, nil
}

// AskLoginStatus polls the vendor for the current scan status code.
func (c *Client) AskLoginStatus(ctx context.Context) (int, error) {
	var ask AskResponse
	if err := c.getJSON(ctx, askStatusURL(c.baseURL), &ask); err != nil {
		return 0, err
	}
	if err := c.checkBaseResp(ask.BaseResp, "ask"); err != nil {
		return 0, err
	}
	return ask.Status, nil
}

var tokenPattern = regexp.MustCompile(`token=(\d+)`)

// CompleteLogin exchanges a confirmed scan for a durable token and the
// session cookie header. The vendor hands back a relative redirect URL
// carrying the token; following it materializes the long-lived cookies.
func (c *Client) CompleteLogin(ctx context.Context) (token string, cookieHeader string, err error) {
	resp, err := c.PostForm(ctx, c.baseURL+LoginEndpoint, loginBody)
	if err != nil {
		return "", "", err
	}

	body, err := c.readBody(resp)
	if err != nil {
		return "", "", err
	}

	var login LoginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		return "", "", errors.New(errors.ErrorTypeParsing, 0, "failed to parse login response: %v", err)
	}
	if err := c.checkBaseResp(login.BaseResp, "login"); err != nil {
		return "", "", err
	}

	m := tokenPattern.FindStringSubmatch(login.RedirectURL)
	if m == nil {
		return "", "", errors.New(errors.ErrorTypeHandshake, 0, "login response carried no token")
	}
	token = m[1]

	// Following the redirect settles the authenticated cookies.
	redirect := login.RedirectURL
	if strings.HasPrefix(redirect, "/") {
		redirect = c.baseURL + redirect
	}
	redirResp, err := c.Get(ctx, redirect)
	if err != nil {
		return "", "", err
	}
	io.Copy(io.Discard, redirResp.Body)
	redirResp.Body.Close()

	cookieHeader = c.cookieHeader()
	if cookieHeader == "" {
		return "", "", errors.New(errors.ErrorTypeHandshake, 0, "login completed without session cookies")
	}

	c.logger.InfoWithFields("login handshake completed", map[string]interface{}{
		"token": token,
	})
	return token, cookieHeader, nil
}

// cookieHeader flattens the jar into a replayable Cookie header value.
func (c *Client) cookieHeader() string {
	if c.httpClient.Jar == nil {
		return c.headers["Cookie"]
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, ck := range c.httpClient.Jar.Cookies(u) {
		sb.WriteString(ck.Name)
		sb.WriteString("=")
		sb.WriteString(ck.Value)
		sb.WriteString("; ")
	}
	return sb.String()
}

var nicknamePattern = regexp.MustCompile(`nick_name:\s*['"]([^'"]*)['"]`)

// FetchAccountName scrapes the logged-in account's display name from the
// landing page. Best effort: a missing name is not an error.
func (c *Client) FetchAccountName(ctx context.Context, token string) (string, error) {
	resp, err := c.Get(ctx, homeURL(c.baseURL, token))
	if err != nil {
		return "", err
	}
	body, err := c.readBody(resp)
	if err != nil {
		return "", err
	}
	if m := nicknamePattern.FindSubmatch(body); m != nil {
		return string(m[1]), nil
	}
	return "", nil
}

// SearchAccount looks up an official account by display name.
func (c *Client) SearchAccount(ctx context.Context, token, query string) (*AccountEntry, error) {
	var result SearchBizResponse
	if err := c.getJSON(ctx, searchBizURL(c.baseURL, token, c.fingerprint, query), &result); err != nil {
		return nil, err
	}
	if err := c.checkBaseResp(result.BaseResp, "searchbiz"); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound, 0, "no account matched %q", query)
	}
	return &result.List[0], nil
}

// FetchPublishPage retrieves one listing page for an account. Pages are
// reverse chronological: begin 0 is the newest window.
func (c *Client) FetchPublishPage(ctx context.Context, token, fakeID string, begin, count int) (*PublishPage, error) {
	resp, err := c.Get(ctx, publishListURL(c.baseURL, token, c.fingerprint, fakeID, begin, count))
	if err != nil {
		return nil, err
	}
	body, err := c.readBody(resp)
	if err != nil {
		return nil, err
	}

	page, br, err := decodePublishPage(body)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParsing, 0, "%v", err)
	}
	if err := c.checkBaseResp(br, "appmsgpublish"); err != nil {
		return nil, err
	}
	if page == nil {
		return nil, errors.New(errors.ErrorTypeParsing, 0, "listing response carried no page")
	}

	c.logger.DebugWithFields("fetched listing page", map[string]interface{}{
		"fakeid":      fakeID,
		"begin":       begin,
		"count":       count,
		"total_count": page.TotalCount,
	})
	return page, nil
}

// HasMore reports whether another page exists past the given window.
func HasMore(begin, pageSize, totalCount int) bool {
	return begin+pageSize < totalCount
}

// CanonicalArticleURL strips volatile query parameters so the same article
// always compares equal across listing runs.
func CanonicalArticleURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	kept := url.Values{}
	for _, key := range []string{"__biz", "mid", "idx", "sn"} {
		if v := q.Get(key); v != "" {
			kept.Set(key, v)
		}
	}
	if len(kept) == 0 {
		u.RawQuery = ""
		u.Fragment = ""
		return u.String()
	}
	// Stable key order keeps the canonical form deterministic.
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteString("://")
	sb.WriteString(u.Host)
	sb.WriteString(u.Path)
	sep := "?"
	for _, key := range []string{"__biz", "mid", "idx", "sn"} {
		if v := kept.Get(key); v != "" {
			sb.WriteString(sep)
			sb.WriteString(key)
			sb.WriteString("=")
			sb.WriteString(v)
			sep = "&"
		}
	}
	return sb.String()
}
