package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mickybart/uptimed/pkg/health"
)

// Search checks a search-cluster endpoint (e.g. Elasticsearch/OpenSearch)
// with a plain ping against the cluster root, the way a client library's
// Ping() call would. No Elasticsearch client is available anywhere in this
// module's dependency stack, so this wraps the same health.HTTPChecker the
// HTTPIngress probe uses (see DESIGN.md).
type Search struct {
	Name     string
	URL      string
	category string
	timeout  time.Duration
}

// NewSearch constructs a Search probe with the default 5s timeout.
func NewSearch(name, url string, category string) *Search {
	if category == "" {
		category = "infra"
	}
	return &Search{Name: name, URL: url, category: category, timeout: 5 * time.Second}
}

func (s *Search) Kind() Kind       { return KindSearch }
func (s *Search) Category() string { return s.category }
func (s *Search) Key() string      { return s.Name }

func (s *Search) Equal(other Service) bool {
	o, ok := other.(*Search)
	return ok && s.Name == o.Name
}

func (s *Search) String() string {
	return fmt.Sprintf("name=%s", s.Name)
}

func (s *Search) Check(ctx context.Context) Result {
	checker := health.NewHTTPChecker(s.URL).WithTimeout(s.timeout).WithStatusRange(200, 299)
	res := checker.Check(ctx)

	status := FAIL
	if res.Healthy {
		status = OK
	}

	extra := map[string]any{"message": res.Message}
	if res.StatusCode != 0 {
		extra["code"] = res.StatusCode
	}

	return Result{Status: status, Extra: extra}
}
