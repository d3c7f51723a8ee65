package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// exportedCookie covers the fields written by common browser cookie exporters.
type exportedCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Path           string   `json:"path"`
	Secure         bool     `json:"secure"`
	HTTPOnly       bool     `json:"httpOnly"`
	SameSite       string   `json:"sameSite"`
	Expires        *float64 `json:"expires"`
	ExpirationDate *float64 `json:"expirationDate"`
}

// LoadCookies reads a JSON cookie export. Cookies without a domain are bound
// to baseURL.
func LoadCookies(path, baseURL string) ([]*proto.NetworkCookieParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookies file: %w", err)
	}
	var exported []exportedCookie
	if err := json.Unmarshal(data, &exported); err != nil {
		return nil, fmt.Errorf("decode cookies file %s: %w", path, err)
	}

	out := make([]*proto.NetworkCookieParam, 0, len(exported))
	for _, c := range exported {
		if c.Name == "" {
			continue
		}
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: sameSite(c.SameSite),
		}
		if c.Domain == "" {
			param.URL = baseURL
		}
		if param.Path == "" {
			param.Path = "/"
		}
		switch {
		case c.Expires != nil && *c.Expires > 0:
			param.Expires = proto.TimeSinceEpoch(*c.Expires)
		case c.ExpirationDate != nil && *c.ExpirationDate > 0:
			param.Expires = proto.TimeSinceEpoch(*c.ExpirationDate)
		}
		out = append(out, param)
	}
	return out, nil
}

func sameSite(v string) proto.NetworkCookieSameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none", "no_restriction", "no-restriction":
		return proto.NetworkCookieSameSiteNone
	case "lax":
		return proto.NetworkCookieSameSiteLax
	case "strict":
		return proto.NetworkCookieSameSiteStrict
	default:
		return ""
	}
}
