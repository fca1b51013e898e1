// Package proxy holds the gateway route table and the reverse proxy that
// forwards matched requests upstream.
package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Route is one entry of the route table.
//
//	routes:
//	  - name: patients
//	    prefix: /api/patients
//	    upstream: http://patient-service:8080
//	    auth: true
//	    contextTtl: 60s
type Route struct {
	Name     string `yaml:"name"`
	Prefix   string `yaml:"prefix"`
	Upstream string `yaml:"upstream"`

	// Auth routes run the delegation and user-context stages.
	Auth bool `yaml:"auth"`

	// AuthService overrides the gateway-wide auth service base URL.
	AuthService string `yaml:"authService"`
	// AuthMethod is GET (default) or POST.
	AuthMethod string `yaml:"authMethod"`
	// AuthPath defaults to /v1/auth/validate.
	AuthPath string `yaml:"authPath"`
	// ForwardHeaders is the allow-list copied onto the validation call.
	ForwardHeaders []string      `yaml:"forwardHeaders"`
	AuthTimeout    time.Duration `yaml:"authTimeout"`

	FailOpen    bool          `yaml:"failOpen"`
	ContextTTL  time.Duration `yaml:"contextTtl"`
	StripPrefix bool          `yaml:"stripPrefix"`

	target *url.URL
}

// Target is the parsed upstream URL. Valid after LoadRoutes or ParseRoutes.
func (r *Route) Target() *url.URL { return r.target }

type routeFile struct {
	Routes []Route `yaml:"routes"`
}

// LoadRoutes reads and validates a YAML route table.
func LoadRoutes(path string) ([]Route, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	return ParseRoutes(raw)
}

// ParseRoutes parses and validates a YAML route table. Every invalid route is
// reported.
func ParseRoutes(raw []byte) ([]Route, error) {
	var f routeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, errors.New("route table is empty")
	}

	var result *multierror.Error
	seen := make(map[string]bool, len(f.Routes))
	for i := range f.Routes {
		r := &f.Routes[i]
		if err := r.normalize(); err != nil {
			result = multierror.Append(result, fmt.Errorf("route %d (%s): %w", i, r.Name, err))
			continue
		}
		if seen[r.Prefix] {
			result = multierror.Append(result, fmt.Errorf("route %d (%s): duplicate prefix %q", i, r.Name, r.Prefix))
		}
		seen[r.Prefix] = true
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return f.Routes, nil
}

func (r *Route) normalize() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if !strings.HasPrefix(r.Prefix, "/") {
		return fmt.Errorf("prefix %q must start with /", r.Prefix)
	}
	if r.Prefix != "/" {
		r.Prefix = strings.TrimRight(r.Prefix, "/")
	}

	u, err := url.Parse(r.Upstream)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream %q must be an absolute http(s) URL", r.Upstream)
	}
	r.target = u

	switch strings.ToUpper(r.AuthMethod) {
	case "":
		r.AuthMethod = http.MethodGet
	case http.MethodGet, http.MethodPost:
		r.AuthMethod = strings.ToUpper(r.AuthMethod)
	default:
		return fmt.Errorf("authMethod must be GET or POST, got %q", r.AuthMethod)
	}
	if r.ContextTTL < 0 || r.AuthTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}
