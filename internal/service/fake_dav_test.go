package service

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ldi/tasksync/internal/caldav"
	"github.com/ldi/tasksync/internal/db"
	"github.com/ldi/tasksync/pkg/models"
)

const homePath = "/alice/"

type davObject struct {
	etag string
	data string
}

// davServer is a small in-memory CalDAV server with a radicale layout.
type davServer struct {
	*httptest.Server

	mu          sync.Mutex
	calendars   map[string]string
	objects     map[string]*davObject
	seq         int
	rejectColor bool
	requests    []string
}

var displayNameRe = regexp.MustCompile(`displayname>([^<]*)<`)

func newDAVServer(t *testing.T) *davServer {
	t.Helper()
	ds := &davServer{
		calendars: make(map[string]string),
		objects:   make(map[string]*davObject),
	}
	ds.Server = httptest.NewServer(http.HandlerFunc(ds.serve))
	t.Cleanup(ds.Close)
	return ds
}

func (ds *davServer) addCalendar(path, name string) string {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.calendars[path] = name
	return ds.URL + path
}

func (ds *davServer) putObject(path, data string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.seq++
	ds.objects[path] = &davObject{etag: fmt.Sprintf("e%d", ds.seq), data: data}
}

func (ds *davServer) object(path string) *davObject {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.objects[path]
}

func (ds *davServer) methods() []string {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return append([]string(nil), ds.requests...)
}

func (ds *davServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.requests = append(ds.requests, r.Method+" "+r.URL.Path)

	if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	path := r.URL.Path
	switch r.Method {
	case "PROPFIND":
		ds.propfind(w, r, path)
	case "REPORT":
		ds.report(w, path)
	case http.MethodPut:
		obj, exists := ds.objects[path]
		if r.Header.Get("If-None-Match") == "*" && exists {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		if m := r.Header.Get("If-Match"); m != "" && (!exists || m != `"`+obj.etag+`"`) {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		ds.seq++
		ds.objects[path] = &davObject{etag: fmt.Sprintf("e%d", ds.seq), data: string(body)}
		w.Header().Set("ETag", `"`+ds.objects[path].etag+`"`)
		if exists {
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.WriteHeader(http.StatusCreated)
		}
	case http.MethodDelete:
		if _, ok := ds.calendars[path]; ok {
			delete(ds.calendars, path)
			for p := range ds.objects {
				if strings.HasPrefix(p, path) {
					delete(ds.objects, p)
				}
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		obj, ok := ds.objects[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if m := r.Header.Get("If-Match"); m != "" && m != `"`+obj.etag+`"` {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		delete(ds.objects, path)
		w.WriteHeader(http.StatusNoContent)
	case "MKCALENDAR":
		name := ""
		if m := displayNameRe.FindStringSubmatch(string(body)); m != nil {
			name = m[1]
		}
		ds.calendars[path] = name
		w.WriteHeader(http.StatusCreated)
	case "PROPPATCH":
		if strings.Contains(string(body), "calendar-color") && ds.rejectColor {
			multistatusOut(w, `<d:response><d:href>`+path+`</d:href><d:propstat><d:prop><ic:calendar-color/></d:prop><d:status>HTTP/1.1 403 Forbidden</d:status></d:propstat></d:response>`)
			return
		}
		if m := displayNameRe.FindStringSubmatch(string(body)); m != nil {
			ds.calendars[path] = m[1]
		}
		multistatusOut(w, `<d:response><d:href>`+path+`</d:href><d:propstat><d:prop/><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (ds *davServer) propfind(w http.ResponseWriter, r *http.Request, path string) {
	if obj, ok := ds.objects[path]; ok {
		multistatusOut(w, `<d:response><d:href>`+path+`</d:href><d:propstat><d:prop><d:getetag>"`+obj.etag+`"</d:getetag></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
		return
	}
	if path != homePath {
		if _, ok := ds.calendars[path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
	}

	var b strings.Builder
	b.WriteString(`<d:response><d:href>` + path + `</d:href><d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
	if r.Header.Get("Depth") == "1" && path == homePath {
		paths := make([]string, 0, len(ds.calendars))
		for p := range ds.calendars {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			b.WriteString(`<d:response><d:href>` + p + `</d:href><d:propstat><d:prop>`)
			b.WriteString(`<d:displayname>` + escape(ds.calendars[p]) + `</d:displayname>`)
			b.WriteString(`<d:resourcetype><d:collection/><c:calendar/></d:resourcetype>`)
			b.WriteString(`<c:supported-calendar-component-set><c:comp name="VTODO"/></c:supported-calendar-component-set>`)
			b.WriteString(`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
		}
	}
	multistatusOut(w, b.String())
}

func (ds *davServer) report(w http.ResponseWriter, path string) {
	paths := make([]string, 0, len(ds.objects))
	for p := range ds.objects {
		if strings.HasPrefix(p, path) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		obj := ds.objects[p]
		b.WriteString(`<d:response><d:href>` + p + `</d:href><d:propstat><d:prop>`)
		b.WriteString(`<d:getetag>"` + obj.etag + `"</d:getetag>`)
		b.WriteString(`<c:calendar-data>` + escape(obj.data) + `</c:calendar-data>`)
		b.WriteString(`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
	}
	multistatusOut(w, b.String())
}

func multistatusOut(w http.ResponseWriter, responses string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?><d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:ic="http://apple.com/ns/ical/">`+responses+`</d:multistatus>`)
}

func escape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// newTestService wires a service over an in-memory database and a fake server
// holding one "Tasks" calendar.
func newTestService(t *testing.T) (*Service, *davServer, *db.DB) {
	t.Helper()
	ds := newDAVServer(t)
	ds.addCalendar(homePath+"tasks/", "Tasks")

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}

	svc := New(database, caldav.NewRegistry(ds.Client(), nil), nil)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc, ds, database
}

func testAccount(ds *davServer) *models.Account {
	return &models.Account{
		Name:       "Home",
		ServerURL:  ds.URL,
		Username:   "alice",
		Password:   "secret",
		ServerType: models.ServerTypeRadicale,
	}
}

// addTestAccount registers the fake server's account and returns the URL of
// its "Tasks" calendar.
func addTestAccount(t *testing.T, svc *Service, ds *davServer) (*models.Account, string) {
	t.Helper()
	acct, _, err := svc.AddAccount(context.Background(), testAccount(ds))
	if err != nil {
		t.Fatalf("AddAccount failed: %v", err)
	}
	return acct, ds.URL + homePath + "tasks/"
}
