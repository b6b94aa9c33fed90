package base

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// URL is an RTSP URL: an HTTP-shaped URL restricted to the rtsp/rtsps
// schemes, with helpers for the `a=control:` attribute convention.
type URL url.URL

var escapeRegexp = regexp.MustCompile(`^(.+?)://(.*?)@(.*?)/(.*?)$`)

// ParseURL parses an RTSP URL.
func ParseURL(s string) (*URL, error) {
	// https://github.com/golang/go/issues/30611
	if m := escapeRegexp.FindStringSubmatch(s); m != nil {
		m[3] = strings.ReplaceAll(m[3], "%25", "%")
		m[3] = strings.ReplaceAll(m[3], "%", "%25")
		s = m[1] + "://" + m[2] + "@" + m[3] + "/" + m[4]
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return nil, fmt.Errorf("rtsp: unsupported scheme %q", u.Scheme)
	}
	return (*URL)(u), nil
}

// String implements fmt.Stringer.
func (u *URL) String() string {
	return (*url.URL)(u).String()
}

// CloneWithoutCredentials clones a URL without its userinfo.
func (u *URL) CloneWithoutCredentials() *URL {
	return (*URL)(&url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	})
}

// BasePath returns the path with its last `/`-separated segment removed,
// typically a `/trackID=...`-style control suffix, mirroring how a media's
// `a=control:` attribute is resolved against the session-level request URL.
// The last segment is removed whether or not it is a control suffix, and
// only the path is returned.
func (u *URL) BasePath() string {
	p := u.Path
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
