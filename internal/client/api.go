package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/handler"
	"github.com/mikahagenbeek692/MovieManager/internal/middleware"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

// APIClient talks to the HTTP API as a browser would: cookies for the
// session, the CSRF token echoed in a header, and the device channel so the
// server can tell the other views about logins and saves.
//
// ERRORS:
// Error responses are turned back into *apperror.AppError with the same
// sentinel the server started from, so callers use errors.Is exactly as the
// services do. The message is the server's, ready to show to the user.
type APIClient struct {
	base    *url.URL
	http    *http.Client
	jar     *cookiejar.Jar
	store   Storage
	session *Session
}

// savedCookie is the part of a cookie worth keeping between runs. The jar
// re-derives domain and path from the base URL.
type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func NewAPIClient(baseURL string, session *Session, store Storage) (*APIClient, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parsing server url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: creating cookie jar: %w", err)
	}

	var saved []savedCookie
	if _, err := getJSON(store, cookiesKey, &saved); err != nil {
		return nil, err
	}
	cookies := make([]*http.Cookie, len(saved))
	for i, c := range saved {
		cookies[i] = &http.Cookie{Name: c.Name, Value: c.Value}
	}
	jar.SetCookies(base, cookies)

	return &APIClient{
		base:    base,
		http:    &http.Client{Jar: jar, Timeout: 30 * time.Second},
		jar:     jar,
		store:   store,
		session: session,
	}, nil
}

// BaseURL is the server the client talks to.
func (c *APIClient) BaseURL() string { return c.base.String() }

// =============================================================================
// Session
// =============================================================================

// Register creates an account. It does not log in.
func (c *APIClient) Register(ctx context.Context, username, password, email string) error {
	_, err := c.do(ctx, http.MethodPost, "/register",
		map[string]string{"username": username, "password": password, "email": email}, nil)
	return err
}

// Login signs in, marks the next reconciliation as a fresh login, and
// fills the session.
func (c *APIClient) Login(ctx context.Context, username, password string) error {
	_, err := c.do(ctx, http.MethodPost, "/login",
		map[string]string{"username": username, "password": password}, nil)
	if err != nil {
		return err
	}
	if err := c.store.Set(JustLoggedInKey, "true"); err != nil {
		return err
	}
	return c.RefreshSession(ctx)
}

// Logout ends the session and purges the user's local state.
func (c *APIClient) Logout(ctx context.Context) error {
	username, _ := c.session.Current()
	if _, err := c.do(ctx, http.MethodPost, "/logout", nil, nil); err != nil {
		return err
	}
	if username != "" {
		if err := ClearUserCache(c.store, username); err != nil {
			return err
		}
	}
	if err := c.store.Remove(JustLoggedInKey); err != nil {
		return err
	}
	return c.session.Clear()
}

// RefreshSession re-derives the session from the server: who the cookie
// belongs to, and a fresh CSRF token. A rejected cookie clears the session
// and returns the 401.
func (c *APIClient) RefreshSession(ctx context.Context) error {
	var me model.UserRef
	if _, err := c.do(ctx, http.MethodGet, "/me", nil, &me); err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			if cerr := c.session.Clear(); cerr != nil {
				return cerr
			}
		}
		return err
	}

	var csrf struct {
		Token string `json:"csrfToken"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/csrf-token", nil, &csrf); err != nil {
		return err
	}
	return c.session.Set(me.Username, csrf.Token)
}

// =============================================================================
// Watchlist and catalog
// =============================================================================

// GetWatchlist fetches the user's list and the version it was read at.
func (c *APIClient) GetWatchlist(ctx context.Context, username string) (*model.Watchlist, error) {
	items := []model.WatchlistItem{}
	resp, err := c.do(ctx, http.MethodGet, "/api/getWatchList?username="+url.QueryEscape(username), nil, &items)
	if err != nil {
		return nil, err
	}

	wl := &model.Watchlist{Items: items}
	if v := resp.Header.Get(handler.VersionHeader); v != "" {
		if wl.Version, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("client: bad %s header %q: %w", handler.VersionHeader, v, err)
		}
	}
	return wl, nil
}

// SaveWatchlist replaces the user's list. A non-nil baseVersion makes the
// server reject the save with a conflict if someone saved in between.
func (c *APIClient) SaveWatchlist(
	ctx context.Context,
	username string,
	entries []model.WatchlistEntry,
	baseVersion *int64,
) (*model.SaveResult, error) {
	if entries == nil {
		entries = []model.WatchlistEntry{}
	}
	body := struct {
		Username    string                 `json:"username"`
		MovieTitles []model.WatchlistEntry `json:"movieTitles"`
		BaseVersion *int64                 `json:"baseVersion,omitempty"`
	}{username, entries, baseVersion}

	var res model.SaveResult
	if _, err := c.do(ctx, http.MethodPost, "/saveWatchList", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Movies returns the catalog.
func (c *APIClient) Movies(ctx context.Context) ([]model.Movie, error) {
	var movies []model.Movie
	if _, err := c.do(ctx, http.MethodGet, "/api/movies", nil, &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

// Recommendations returns movie ids suggested for the logged-in user.
func (c *APIClient) Recommendations(ctx context.Context) ([]int64, error) {
	var res struct {
		IDs []int64 `json:"recommended_movie_ids"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/recommendations", nil, &res); err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// =============================================================================
// Transport
// =============================================================================

// do sends one JSON request. out, when non-nil, receives the decoded body
// of a successful response. The returned response has its body closed and
// is only good for headers.
func (c *APIClient) do(ctx context.Context, method, path string, in, out any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("client: encoding %s body: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("client: building %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if _, token := c.session.Current(); token != "" {
		req.Header.Set(middleware.CSRFHeader, token)
	}
	req.Header.Set(handler.ClientChannelHeader, c.session.ChannelID())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := c.saveCookies(); err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return resp, decodeError(method, path, resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("client: decoding %s response: %w", path, err)
		}
	}
	return resp, nil
}

func (c *APIClient) saveCookies() error {
	cookies := c.jar.Cookies(c.base)
	saved := make([]savedCookie, len(cookies))
	for i, ck := range cookies {
		saved[i] = savedCookie{Name: ck.Name, Value: ck.Value}
	}
	return setJSON(c.store, cookiesKey, saved)
}

// decodeError maps an error response back onto the apperror taxonomy.
func decodeError(method, path string, resp *http.Response) error {
	var body handler.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)

	msg := body.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return &apperror.AppError{Err: apperror.ErrValidation, Message: msg, Field: body.Field}
	case http.StatusUnauthorized:
		return apperror.Unauthorized(msg)
	case http.StatusForbidden:
		return apperror.Forbidden(msg)
	case http.StatusNotFound:
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: msg}
	case http.StatusConflict:
		return &apperror.AppError{Err: apperror.ErrConflict, Message: msg}
	case http.StatusTooManyRequests:
		secs := body.RetryAfter
		if secs == 0 {
			secs, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
		}
		return &apperror.AppError{
			Err:        apperror.ErrRateLimited,
			Message:    msg,
			RetryAfter: time.Duration(secs) * time.Second,
		}
	}
	return fmt.Errorf("client: %s %s: %d %s", method, path, resp.StatusCode, msg)
}
