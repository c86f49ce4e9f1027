package caldav

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ldi/tasksync/pkg/models"
)

// layout locates the principal and calendar home for one kind of server.
type layout interface {
	locate(ctx context.Context, c *Client) (principal, home string, err error)
}

func layoutFor(t models.ServerType) (layout, error) {
	switch t {
	case models.ServerTypeRustical:
		return rusticalLayout{}, nil
	case models.ServerTypeRadicale:
		return radicaleLayout{}, nil
	case models.ServerTypeBaikal:
		return baikalLayout{}, nil
	case models.ServerTypeNextcloud:
		return nextcloudLayout{}, nil
	case models.ServerTypeGeneric, "":
		return genericLayout{}, nil
	default:
		return nil, fmt.Errorf("unknown server type %q", t)
	}
}

func base(c *Client) string {
	return strings.TrimRight(c.serverURL, "/")
}

func user(c *Client) string {
	return url.PathEscape(c.username)
}

type rusticalLayout struct{}

func (rusticalLayout) locate(_ context.Context, c *Client) (string, string, error) {
	p := base(c) + "/caldav/principal/" + user(c) + "/"
	return p, p, nil
}

type radicaleLayout struct{}

func (radicaleLayout) locate(_ context.Context, c *Client) (string, string, error) {
	p := base(c) + "/" + user(c) + "/"
	return p, p, nil
}

type baikalLayout struct{}

func (baikalLayout) locate(_ context.Context, c *Client) (string, string, error) {
	return base(c) + "/dav.php/principals/" + user(c) + "/",
		base(c) + "/dav.php/calendars/" + user(c) + "/", nil
}

type nextcloudLayout struct{}

func (nextcloudLayout) locate(_ context.Context, c *Client) (string, string, error) {
	return base(c) + "/remote.php/dav/principals/users/" + user(c) + "/",
		base(c) + "/remote.php/dav/calendars/" + user(c) + "/", nil
}

// genericLayout follows RFC 6764/4791 discovery: current-user-principal from
// /.well-known/caldav or the server URL, then calendar-home-set on the principal.
type genericLayout struct{}

func (genericLayout) locate(ctx context.Context, c *Client) (string, string, error) {
	wellKnown, err := resolve(c.serverURL, "/.well-known/caldav")
	if err != nil {
		return "", "", fmt.Errorf("invalid server url: %w", err)
	}

	var principal string
	for _, candidate := range []string{wellKnown, c.serverURL} {
		p, err := c.currentUserPrincipal(ctx, candidate)
		if isAuth(err) {
			return "", "", err
		}
		if err != nil {
			c.logger.Printf("principal lookup at %s: %v", candidate, err)
			continue
		}
		if p != "" {
			principal = p
			break
		}
	}
	if principal == "" {
		return "", "", ErrDiscoveryFailed
	}

	home, err := c.calendarHomeSet(ctx, principal)
	if err != nil {
		if isAuth(err) {
			return "", "", err
		}
		return "", "", fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}
	if home == "" {
		return "", "", ErrDiscoveryFailed
	}
	return principal, home, nil
}

func (c *Client) currentUserPrincipal(ctx context.Context, target string) (string, error) {
	resp, items, err := c.propfind(ctx, target, "0", propCurrentPrincipal)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		if href := item.href(propCurrentPrincipal); href != "" {
			return resolve(resp.URL, href)
		}
	}
	return "", nil
}

func (c *Client) calendarHomeSet(ctx context.Context, principal string) (string, error) {
	resp, items, err := c.propfind(ctx, principal, "0", propCalendarHomeSet)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		if href := item.href(propCalendarHomeSet); href != "" {
			return resolve(resp.URL, href)
		}
	}
	return "", nil
}

// verifyPrincipal checks that the principal answers PROPFIND with these credentials.
func (c *Client) verifyPrincipal(ctx context.Context) error {
	_, _, err := c.propfind(ctx, c.principalURL, "0", propCurrentPrincipal, propDisplayName)
	var he *HTTPError
	if errors.As(err, &he) && he.NotFound() {
		return fmt.Errorf("%w: principal %s not found", ErrDiscoveryFailed, c.principalURL)
	}
	return err
}
