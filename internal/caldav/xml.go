package caldav

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

const (
	nsDAV    = "DAV:"
	nsCalDAV = "urn:ietf:params:xml:ns:caldav"
	nsCS     = "http://calendarserver.org/ns/"
	nsICal   = "http://apple.com/ns/ical/"
)

var prefixes = []struct{ ns, prefix string }{
	{nsDAV, "d"},
	{nsCalDAV, "c"},
	{nsCS, "cs"},
	{nsICal, "ic"},
}

type name struct {
	ns    string
	local string
}

func (n name) qualified() string {
	for _, p := range prefixes {
		if p.ns == n.ns {
			return p.prefix + ":" + n.local
		}
	}
	return n.local
}

var (
	propDisplayName      = name{nsDAV, "displayname"}
	propResourceType     = name{nsDAV, "resourcetype"}
	propGetETag          = name{nsDAV, "getetag"}
	propSyncToken        = name{nsDAV, "sync-token"}
	propCurrentPrincipal = name{nsDAV, "current-user-principal"}
	propCalendarHomeSet  = name{nsCalDAV, "calendar-home-set"}
	propComponentSet     = name{nsCalDAV, "supported-calendar-component-set"}
	propCalendarData     = name{nsCalDAV, "calendar-data"}
	propCTag             = name{nsCS, "getctag"}
	propCalendarColor    = name{nsICal, "calendar-color"}
)

// element is a node of an outgoing request body.
type element struct {
	name     name
	attrs    [][2]string
	text     string
	children []*element
}

func el(n name, children ...*element) *element {
	return &element{name: n, children: children}
}

func (e *element) withText(s string) *element {
	e.text = s
	return e
}

func (e *element) withAttr(key, value string) *element {
	e.attrs = append(e.attrs, [2]string{key, value})
	return e
}

// document renders e as the root of an XML document declaring every namespace prefix.
func document(e *element) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	e.write(&b, true)
	return b.Bytes()
}

func (e *element) write(b *bytes.Buffer, root bool) {
	b.WriteByte('<')
	b.WriteString(e.name.qualified())
	if root {
		for _, p := range prefixes {
			b.WriteString(` xmlns:` + p.prefix + `="`)
			xml.EscapeText(b, []byte(p.ns))
			b.WriteByte('"')
		}
	}
	for _, a := range e.attrs {
		b.WriteString(" " + a[0] + `="`)
		xml.EscapeText(b, []byte(a[1]))
		b.WriteByte('"')
	}
	if e.text == "" && len(e.children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	xml.EscapeText(b, []byte(e.text))
	for _, c := range e.children {
		c.write(b, false)
	}
	b.WriteString("</" + e.name.qualified() + ">")
}

func propfindBody(props ...name) []byte {
	prop := el(name{nsDAV, "prop"})
	for _, p := range props {
		prop.children = append(prop.children, el(p))
	}
	return document(el(name{nsDAV, "propfind"}, prop))
}

func calendarQueryBody() []byte {
	return document(el(name{nsCalDAV, "calendar-query"},
		el(name{nsDAV, "prop"}, el(propGetETag), el(propCalendarData)),
		el(name{nsCalDAV, "filter"},
			el(name{nsCalDAV, "comp-filter"},
				el(name{nsCalDAV, "comp-filter"}).withAttr("name", "VTODO"),
			).withAttr("name", "VCALENDAR"),
		),
	))
}

func proppatchBody(prop *element) []byte {
	return document(el(name{nsDAV, "propertyupdate"},
		el(name{nsDAV, "set"}, el(name{nsDAV, "prop"}, prop)),
	))
}

func mkcalendarBody(displayName, color string) []byte {
	prop := el(name{nsDAV, "prop"},
		el(propDisplayName).withText(displayName),
		el(propComponentSet, el(name{nsCalDAV, "comp"}).withAttr("name", "VTODO")),
	)
	if color != "" {
		prop.children = append(prop.children, el(propCalendarColor).withText(color))
	}
	return document(el(name{nsCalDAV, "mkcalendar"}, el(name{nsDAV, "set"}, prop)))
}

// propValue is what the reader keeps of a single property.
type propValue struct {
	Text     string
	Hrefs    []string
	Children []string
	Comps    []string
}

// msResponse is one <response> of a multistatus body. Props holds the
// properties of successful propstats, Failed the names of the others.
type msResponse struct {
	Href   string
	Status int
	Props  map[string]propValue
	Failed []string
}

func (r msResponse) text(n name) string {
	return r.Props[n.local].Text
}

func (r msResponse) href(n name) string {
	if hrefs := r.Props[n.local].Hrefs; len(hrefs) > 0 {
		return hrefs[0]
	}
	return ""
}

// parseMultistatus walks a 207 body and extracts responses by element local
// name. Namespace prefixes chosen by the server are irrelevant.
func parseMultistatus(r io.Reader) ([]msResponse, error) {
	dec := xml.NewDecoder(r)

	var (
		out       []msResponse
		cur       *msResponse
		stack     []string
		leaf      strings.Builder
		psProps   map[string]propValue
		psStatus  int
		propName  string
		propDepth int
		propText  strings.Builder
		val       propValue
	)

	parent := func() string {
		if len(stack) < 2 {
			return ""
		}
		return stack[len(stack)-2]
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			local := t.Name.Local
			stack = append(stack, local)
			leaf.Reset()

			switch {
			case propName != "":
				if len(stack) == propDepth+1 {
					val.Children = append(val.Children, local)
				}
				if local == "comp" {
					for _, a := range t.Attr {
						if a.Name.Local == "name" {
							val.Comps = append(val.Comps, strings.ToUpper(a.Value))
						}
					}
				}
			case local == "response":
				cur = &msResponse{Props: map[string]propValue{}}
			case local == "propstat":
				psProps = map[string]propValue{}
				psStatus = 0
			case cur != nil && psProps != nil && parent() == "prop":
				propName = local
				propDepth = len(stack)
				propText.Reset()
				val = propValue{}
			}

		case xml.CharData:
			leaf.Write(t)
			if propName != "" {
				propText.Write(t)
			}

		case xml.EndElement:
			local := t.Name.Local
			text := strings.TrimSpace(leaf.String())

			switch {
			case propName != "" && len(stack) == propDepth:
				val.Text = strings.TrimSpace(propText.String())
				psProps[propName] = val
				propName = ""
			case propName != "" && local == "href":
				val.Hrefs = append(val.Hrefs, text)
			case cur == nil:
			case local == "href" && parent() == "response":
				cur.Href = text
			case local == "status" && parent() == "propstat":
				psStatus = parseStatusLine(text)
			case local == "status" && parent() == "response":
				cur.Status = parseStatusLine(text)
			case local == "propstat":
				if psStatus == 0 || (psStatus >= 200 && psStatus < 300) {
					for k, v := range psProps {
						cur.Props[k] = v
					}
				} else {
					for k := range psProps {
						cur.Failed = append(cur.Failed, k)
					}
				}
				psProps = nil
			case local == "response":
				out = append(out, *cur)
				cur = nil
			}

			stack = stack[:len(stack)-1]
			leaf.Reset()
		}
	}

	return out, nil
}

// parseStatusLine extracts the code from "HTTP/1.1 200 OK".
func parseStatusLine(s string) int {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}
