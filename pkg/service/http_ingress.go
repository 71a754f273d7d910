package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mickybart/uptimed/pkg/health"
)

// HTTPIngress checks an HTTP(S) endpoint discovered from a cluster ingress
// controller. Its identity tuple is (namespace, url), matching the
// key-tuple the storage layer uses to resolve the service row.
type HTTPIngress struct {
	Namespace string
	Name      string
	URL       string
	Headers   map[string]string
	category  string
	timeout   time.Duration
}

// NewHTTPIngress constructs an HTTPIngress probe with the default 2s timeout.
func NewHTTPIngress(namespace, name, url string, headers map[string]string, category string) *HTTPIngress {
	if category == "" {
		category = "ns"
	}
	return &HTTPIngress{
		Namespace: namespace,
		Name:      name,
		URL:       url,
		Headers:   headers,
		category:  category,
		timeout:   2 * time.Second,
	}
}

func (h *HTTPIngress) Kind() Kind     { return KindHTTPIngress }
func (h *HTTPIngress) Category() string { return h.category }
func (h *HTTPIngress) Key() string    { return h.Namespace + "/" + h.URL }

func (h *HTTPIngress) Equal(other Service) bool {
	o, ok := other.(*HTTPIngress)
	return ok && h.Namespace == o.Namespace && h.URL == o.URL
}

func (h *HTTPIngress) String() string {
	return fmt.Sprintf("ns=%s, name=%s, url=%s", h.Namespace, h.Name, h.URL)
}

func (h *HTTPIngress) Check(ctx context.Context) Result {
	checker := health.NewHTTPChecker(h.URL).WithTimeout(h.timeout)
	for k, v := range h.Headers {
		checker = checker.WithHeader(k, v)
	}

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
