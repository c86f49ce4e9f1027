package caldav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/tasksync/internal/ical"
	"github.com/ldi/tasksync/pkg/models"
	"golang.org/x/oauth2"
)

const maxRedirects = 10

const (
	methodPropfind   = "PROPFIND"
	methodProppatch  = "PROPPATCH"
	methodReport     = "REPORT"
	methodMkcalendar = "MKCALENDAR"
)

// Client talks to a single CalDAV account. Use Registry to obtain one.
type Client struct {
	accountID    string
	serverURL    string
	username     string
	password     string
	token        string
	serverType   models.ServerType
	principalURL string
	calendarHome string

	http   *http.Client
	logger *log.Logger
}

// AccountID returns the account this client was connected for.
func (c *Client) AccountID() string {
	return c.accountID
}

func (c *Client) ServerURL() string {
	return c.serverURL
}

func (c *Client) ServerType() models.ServerType {
	return c.serverType
}

// PrincipalURL returns the verified principal collection.
func (c *Client) PrincipalURL() string {
	return c.principalURL
}

// CalendarHome returns the collection holding the account's calendars.
func (c *Client) CalendarHome() string {
	return c.calendarHome
}

type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// do sends a request and follows 301/302/307/308 by re-issuing the same method
// and body to the absolute Location. Credentials only go to the original host.
func (c *Client) do(ctx context.Context, method, target string, body []byte, header http.Header) (*response, error) {
	var origin string
	for hop := 0; ; hop++ {
		if hop > maxRedirects {
			return nil, fmt.Errorf("%s %s: too many redirects", method, target)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if hop == 0 {
			origin = req.URL.Host
		}
		if strings.EqualFold(req.URL.Host, origin) {
			c.authorize(req)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, target, err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			loc := resp.Header.Get("Location")
			if loc == "" {
				break
			}
			next, err := resolve(target, loc)
			if err != nil {
				return nil, fmt.Errorf("invalid redirect location %q: %w", loc, err)
			}
			c.logger.Printf("%s %s redirected to %s", method, target, next)
			target = next
			continue
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%s %s: %w", method, target, ErrAuthenticationFailed)
		}

		return &response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       data,
			URL:        target,
		}, nil
	}
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.token != "":
		(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}).SetAuthHeader(req)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}
}

func (c *Client) propfind(ctx context.Context, target, depth string, props ...name) (*response, []msResponse, error) {
	header := http.Header{}
	header.Set("Depth", depth)
	header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.do(ctx, methodPropfind, target, propfindBody(props...), header)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return resp, nil, &HTTPError{Method: methodPropfind, URL: resp.URL, StatusCode: resp.StatusCode}
	}
	items, err := parseMultistatus(bytes.NewReader(resp.Body))
	if err != nil {
		return resp, nil, fmt.Errorf("failed to parse multistatus from %s: %w", resp.URL, err)
	}
	return resp, items, nil
}

// FetchCalendars lists the task-capable calendars under the calendar home.
func (c *Client) FetchCalendars(ctx context.Context) ([]*models.Calendar, error) {
	resp, items, err := c.propfind(ctx, c.calendarHome, "1",
		propDisplayName, propResourceType, propComponentSet, propCTag, propSyncToken, propCalendarColor)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendars: %w", err)
	}

	now := time.Now()
	var calendars []*models.Calendar
	for _, item := range items {
		href, err := resolve(resp.URL, item.Href)
		if err != nil || sameCollection(href, c.calendarHome) || sameCollection(href, resp.URL) {
			continue
		}
		if !containsFold(item.Props[propResourceType.local].Children, "calendar") {
			continue
		}
		comps := item.Props[propComponentSet.local].Comps
		cal := &models.Calendar{
			ID:          href,
			AccountID:   c.accountID,
			DisplayName: item.text(propDisplayName),
			CTag:        item.text(propCTag),
			SyncToken:   item.text(propSyncToken),
			Components:  comps,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if !cal.SupportsTasks() {
			continue
		}
		if cal.DisplayName == "" {
			cal.DisplayName = lastSegment(href)
		}
		if color := item.text(propCalendarColor); color != "" {
			if normalized, ok := NormalizeColor(color); ok {
				cal.Color = normalized
			} else {
				cal.Color = color
			}
		}
		calendars = append(calendars, cal)
	}
	return calendars, nil
}

// FetchTasks returns every VTODO in the calendar. Objects that fail to decode
// are skipped.
func (c *Client) FetchTasks(ctx context.Context, calendarURL string) ([]*models.Task, error) {
	header := http.Header{}
	header.Set("Depth", "1")
	header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.do(ctx, methodReport, calendarURL, calendarQueryBody(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("failed to fetch tasks: %w", &HTTPError{Method: methodReport, URL: resp.URL, StatusCode: resp.StatusCode})
	}
	items, err := parseMultistatus(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse tasks from %s: %w", resp.URL, err)
	}

	var tasks []*models.Task
	for _, item := range items {
		data := item.text(propCalendarData)
		if data == "" {
			continue
		}
		href, err := resolve(resp.URL, item.Href)
		if err != nil {
			c.logger.Printf("skipping object with invalid href %q: %v", item.Href, err)
			continue
		}
		t, err := ical.Decode(data)
		if err != nil {
			c.logger.Printf("skipping undecodable object %s: %v", href, err)
			continue
		}
		t.Href = href
		t.ETag = normalizeETag(item.text(propGetETag))
		t.CalendarID = calendarURL
		t.AccountID = c.accountID
		t.Synced = t.ETag != ""
		t.LocalOnly = false
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CreateTask PUTs a new object named {uid}.ics into the calendar and records
// the resulting href and ETag on t.
func (c *Client) CreateTask(ctx context.Context, calendarURL string, t *models.Task) error {
	target, err := resolve(withSlash(calendarURL), url.PathEscape(t.UID)+".ics")
	if err != nil {
		return fmt.Errorf("failed to build task url: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "text/calendar; charset=utf-8")
	header.Set("If-None-Match", "*")

	resp, err := c.do(ctx, http.MethodPut, target, []byte(ical.Encode(t)), header)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("failed to create task: %w", &HTTPError{Method: http.MethodPut, URL: resp.URL, StatusCode: resp.StatusCode})
	}

	t.Href = resp.URL
	t.ETag = normalizeETag(resp.Header.Get("ETag"))
	t.CalendarID = calendarURL
	t.AccountID = c.accountID
	t.Synced = t.ETag != ""
	return nil
}

// UpdateTask PUTs t over its href, conditional on its ETag.
func (c *Client) UpdateTask(ctx context.Context, t *models.Task) error {
	if t.Href == "" {
		return fmt.Errorf("failed to update task %s: %w", t.UID, ErrNotSynced)
	}

	header := http.Header{}
	header.Set("Content-Type", "text/calendar; charset=utf-8")
	if t.ETag != "" {
		header.Set("If-Match", quoteETag(t.ETag))
	}

	resp, err := c.do(ctx, http.MethodPut, t.Href, []byte(ical.Encode(t)), header)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("failed to update task: %w", &HTTPError{Method: http.MethodPut, URL: resp.URL, StatusCode: resp.StatusCode})
	}

	t.ETag = normalizeETag(resp.Header.Get("ETag"))
	t.Synced = t.ETag != ""
	return nil
}

// DeleteTask removes the object at href, conditional on etag when given.
func (c *Client) DeleteTask(ctx context.Context, href, etag string) error {
	if href == "" {
		return fmt.Errorf("failed to delete task: %w", ErrNotSynced)
	}

	header := http.Header{}
	if etag != "" {
		header.Set("If-Match", quoteETag(etag))
	}

	resp, err := c.do(ctx, http.MethodDelete, href, nil, header)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("failed to delete task: %w", &HTTPError{Method: http.MethodDelete, URL: resp.URL, StatusCode: resp.StatusCode})
	}
	return nil
}

// FetchETag reads the current ETag of a single object.
func (c *Client) FetchETag(ctx context.Context, href string) (string, error) {
	_, items, err := c.propfind(ctx, href, "0", propGetETag)
	if err != nil {
		return "", fmt.Errorf("failed to fetch etag: %w", err)
	}
	for _, item := range items {
		if etag := normalizeETag(item.text(propGetETag)); etag != "" {
			return etag, nil
		}
	}
	return "", nil
}

// CalendarChanges lists the calendar properties to update. Nil fields are left alone.
type CalendarChanges struct {
	DisplayName *string
	Color       *string
}

// UpdateCalendar issues one PROPPATCH per changed property and returns the
// names of the properties the server rejected. Only authentication failures
// are returned as errors.
func (c *Client) UpdateCalendar(ctx context.Context, calendarURL string, changes CalendarChanges) ([]string, error) {
	var props []*element
	if changes.DisplayName != nil {
		props = append(props, el(propDisplayName).withText(*changes.DisplayName))
	}
	if changes.Color != nil {
		color, ok := NormalizeColor(*changes.Color)
		if !ok {
			return []string{propCalendarColor.local}, nil
		}
		props = append(props, el(propCalendarColor).withText(color))
	}

	header := http.Header{}
	header.Set("Content-Type", "application/xml; charset=utf-8")

	var failed []string
	for _, prop := range props {
		resp, err := c.do(ctx, methodProppatch, calendarURL, proppatchBody(prop), header)
		if err != nil {
			if isAuth(err) {
				return failed, err
			}
			c.logger.Printf("proppatch %s on %s: %v", prop.name.local, calendarURL, err)
			failed = append(failed, prop.name.local)
			continue
		}
		if !resp.ok() {
			c.logger.Printf("proppatch %s on %s: status %d", prop.name.local, calendarURL, resp.StatusCode)
			failed = append(failed, prop.name.local)
			continue
		}
		if resp.StatusCode == http.StatusMultiStatus {
			items, err := parseMultistatus(bytes.NewReader(resp.Body))
			if err != nil {
				failed = append(failed, prop.name.local)
				continue
			}
			for _, item := range items {
				if containsFold(item.Failed, prop.name.local) {
					failed = append(failed, prop.name.local)
					break
				}
			}
		}
	}
	return failed, nil
}

// DeleteCalendar removes a calendar collection.
func (c *Client) DeleteCalendar(ctx context.Context, calendarURL string) error {
	resp, err := c.do(ctx, http.MethodDelete, calendarURL, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to delete calendar: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("failed to delete calendar: %w", &HTTPError{Method: http.MethodDelete, URL: resp.URL, StatusCode: resp.StatusCode})
	}
	return nil
}

// CreateCalendar creates a VTODO-only calendar under the calendar home.
func (c *Client) CreateCalendar(ctx context.Context, displayName, color string) (*models.Calendar, error) {
	if color != "" {
		normalized, ok := NormalizeColor(color)
		if !ok {
			return nil, fmt.Errorf("invalid color %q", color)
		}
		color = normalized
	}

	target, err := resolve(withSlash(c.calendarHome), uuid.New().String()+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar url: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.do(ctx, methodMkcalendar, target, mkcalendarBody(displayName, color), header)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar: %w", err)
	}
	if !resp.ok() {
		return nil, fmt.Errorf("failed to create calendar: %w", &HTTPError{Method: methodMkcalendar, URL: resp.URL, StatusCode: resp.StatusCode})
	}

	now := time.Now()
	return &models.Calendar{
		ID:          resp.URL,
		AccountID:   c.accountID,
		DisplayName: displayName,
		Color:       color,
		Components:  []string{"VTODO"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func sameCollection(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

func lastSegment(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	p := strings.TrimSuffix(u.Path, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		return unescaped
	}
	return p
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// normalizeETag strips the weak prefix and surrounding quotes.
func normalizeETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

func quoteETag(etag string) string {
	return `"` + etag + `"`
}
