package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mickybart/uptimed/pkg/log"
	"github.com/mickybart/uptimed/pkg/service"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// Target is the subset of Monitor this provider depends on, kept narrow so
// it can be faked in tests without pulling in pkg/task.
type Target interface {
	Add(svc service.Service, provider string)
	Remove(svc service.Service, provider string)
	RemoveDelegation(predicate func(svc service.Service, extra any) bool, extra any, provider string)
}

// Filter hooks URL exclusion and extra request headers into the services
// an IngressProvider derives.
type Filter interface {
	// Exclude reports whether url should never become a monitored service.
	Exclude(url string) bool
	// Headers returns extra HTTP headers the generated HTTPIngress probe
	// should send when checking url.
	Headers(url string) map[string]string
}

// NoFilter excludes nothing and attaches no headers.
type NoFilter struct{}

func (NoFilter) Exclude(string) bool              { return false }
func (NoFilter) Headers(string) map[string]string { return nil }

type ingressClient interface {
	List(ctx context.Context, opts metav1.ListOptions) (*networkingv1.IngressList, error)
	Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)
}

// IngressProvider watches Ingress objects cluster-wide and derives
// HTTPIngress services, one per (host, path) rule.
type IngressProvider struct {
	Name     string
	Category string

	client ingressClient
	target Target
	filter Filter

	mu      sync.Mutex
	stopCh  chan struct{}
	watcher watch.Interface
}

// NewIngressProvider constructs a provider against clientset, watching
// every namespace.
func NewIngressProvider(name string, clientset kubernetes.Interface, target Target, category string, filter Filter) *IngressProvider {
	if filter == nil {
		filter = NoFilter{}
	}
	return &IngressProvider{
		Name:     name,
		Category: category,
		client:   clientset.NetworkingV1().Ingresses(""),
		target:   target,
		filter:   filter,
	}
}

func (p *IngressProvider) String() string { return "Provider: " + p.Name }

// rulesToServices derives one HTTPIngress per (host, path) rule on ing,
// building "https://" + host + path with a forced leading and trailing
// slash, plus a "health" suffix.
func (p *IngressProvider) rulesToServices(ing *networkingv1.Ingress) []service.Service {
	var out []service.Service
	ns := ing.Namespace
	name := ing.Name

	for _, rule := range ing.Spec.Rules {
		if rule.HTTP == nil {
			continue
		}
		for _, httpPath := range rule.HTTP.Paths {
			path := httpPath.Path
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			if !strings.HasSuffix(path, "/") {
				path = path + "/"
			}
			url := fmt.Sprintf("https://%s%shealth", rule.Host, path)

			if p.filter.Exclude(url) {
				continue
			}

			out = append(out, service.NewHTTPIngress(ns, name, url, p.filter.Headers(url), p.Category))
		}
	}
	return out
}

// Run watches Ingress ADDED/MODIFIED/DELETED events until ctx is done or
// Stop is called, dispatching each to the Target. It is meant to be run in
// its own goroutine.
func (p *IngressProvider) Run(ctx context.Context) error {
	p.mu.Lock()
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	providerLog := log.WithProvider(p.Name)
	providerLog.Info().Msg("starting ingress watch")

	w, err := p.client.Watch(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("watch ingresses: %w", err)
	}

	p.mu.Lock()
	p.watcher = w
	p.mu.Unlock()

	for {
		select {
		case <-p.stopCh:
			w.Stop()
			return nil
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case event, ok := <-w.ResultChan():
			if !ok {
				return nil
			}
			p.dispatch(event)
		}
	}
}

// Stop cooperatively ends Run.
func (p *IngressProvider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		select {
		case <-p.stopCh:
		default:
			close(p.stopCh)
		}
	}
}

func (p *IngressProvider) dispatch(event watch.Event) {
	ing, ok := event.Object.(*networkingv1.Ingress)
	if !ok {
		return
	}

	switch event.Type {
	case watch.Added:
		for _, svc := range p.rulesToServices(ing) {
			p.target.Add(svc, p.Name)
		}
	case watch.Deleted:
		for _, svc := range p.rulesToServices(ing) {
			p.target.Remove(svc, p.Name)
		}
	case watch.Modified:
		// A MODIFIED event carries only the new object, not a diff, so this
		// is a remove-then-add keyed on (namespace, name).
		extra := ingressIdentity{Namespace: ing.Namespace, Name: ing.Name}
		p.target.RemoveDelegation(matchesIngressIdentity, extra, p.Name)
		for _, svc := range p.rulesToServices(ing) {
			p.target.Add(svc, p.Name)
		}
	}
}

type ingressIdentity struct {
	Namespace string
	Name      string
}

func matchesIngressIdentity(svc service.Service, extra any) bool {
	ing, ok := svc.(*service.HTTPIngress)
	if !ok {
		return false
	}
	id, ok := extra.(ingressIdentity)
	if !ok {
		return false
	}
	return ing.Namespace == id.Namespace && ing.Name == id.Name
}
