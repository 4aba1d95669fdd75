package midway

import (
	"bufio"
	"crypto/tls"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Midway держит cookies в формате Netscape (tab-separated):
// domain, flag, path, secure, expires, name, value.
const DefaultCookiePath = "~/.midway/cookie"

type Auth struct {
	cookiePath string
}

func New(cookiePath string) *Auth {
	if cookiePath == "" {
		cookiePath = DefaultCookiePath
	}
	return &Auth{cookiePath: expandHome(cookiePath)}
}

// Client builds an HTTP client pre-loaded with the Midway session cookies.
// Redirects are disabled so a 3xx to the login page surfaces as a status code
// the caller can treat as an expired session ("mwinit -o" needed).
func (a *Auth) Client() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "new cookie jar")
	}

	if err := a.loadCookies(jar); err != nil {
		return nil, err
	}

	return &http.Client{
		Timeout: 30 * time.Second,
		Jar:     jar,
		Transport: &http.Transport{
			// Внутренний дашборд использует внутренний CA.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

func (a *Auth) loadCookies(jar http.CookieJar) error {
	f, err := os.Open(a.cookiePath)
	if err != nil {
		return errors.Wrap(err, "open cookie file")
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "# ") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}

		domain := fields[0]
		if strings.HasPrefix(domain, "#HttpOnly_") {
			domain = strings.TrimPrefix(domain, "#HttpOnly_")
		} else if strings.HasPrefix(domain, "#") {
			continue
		}

		cookie := &http.Cookie{
			Name:   fields[5],
			Value:  fields[6],
			Domain: domain,
			Path:   fields[2],
			Secure: strings.Contains(fields[3], "TRUE"),
		}

		u := &url.URL{Scheme: "https", Host: strings.TrimPrefix(domain, "."), Path: cookie.Path}
		jar.SetCookies(u, []*http.Cookie{cookie})
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read cookie file")
	}
	if loaded == 0 {
		return errors.Errorf("no cookies loaded from %s (try: mwinit -o)", a.cookiePath)
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
