package service

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Cluster checks the availability of a Kubernetes cluster's nodes: the
// probe lists all nodes and fails if fewer than Availability percent of
// them report a condition other than Unknown.
type Cluster struct {
	Name         string
	Context      string
	Availability int
	category     string

	kubeconfig string
}

// NewCluster constructs a Cluster probe against a named kubeconfig context.
func NewCluster(name, kubeconfig, context string, availability int, category string) *Cluster {
	if category == "" {
		category = "infra"
	}
	return &Cluster{
		Name:         name,
		Context:      context,
		Availability: availability,
		category:     category,
		kubeconfig:   kubeconfig,
	}
}

func (c *Cluster) Kind() Kind       { return KindCluster }
func (c *Cluster) Category() string { return c.category }
func (c *Cluster) Key() string      { return c.Name + "/" + c.Context }

func (c *Cluster) Equal(other Service) bool {
	o, ok := other.(*Cluster)
	return ok && c.Name == o.Name && c.Context == o.Context
}

func (c *Cluster) String() string {
	return fmt.Sprintf("name=%s, context=%s", c.Name, c.Context)
}

func (c *Cluster) Check(ctx context.Context) Result {
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: c.kubeconfig},
		&clientcmd.ConfigOverrides{CurrentContext: c.Context},
	).ClientConfig()
	if err != nil {
		return Result{Status: FAIL, Extra: map[string]any{"exception": err.Error()}}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return Result{Status: FAIL, Extra: map[string]any{"exception": err.Error()}}
	}

	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return Result{Status: FAIL, Extra: map[string]any{"exception": err.Error()}}
	}

	var unknown, total int
	for _, node := range nodes.Items {
		total++
		for _, cond := range node.Status.Conditions {
			if cond.Status == corev1.ConditionUnknown {
				unknown++
				break
			}
		}
	}

	if total > 0 && (100-(unknown*100/total)) >= c.Availability {
		return Result{Status: OK}
	}

	return Result{
		Status: FAIL,
		Extra: map[string]any{
			"ready":   total - unknown,
			"unknown": unknown,
		},
	}
}
