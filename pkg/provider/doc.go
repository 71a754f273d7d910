/*
Package provider implements the external service-discovery collaborators:
components that call
Monitor.Add / Monitor.Remove / Monitor.RemoveDelegation to keep the set of
monitored services in sync with some outside source of truth.

IngressProvider is the reference implementation: it watches
networking.k8s.io/v1 Ingress objects across all namespaces and derives one
HTTPIngress probe per (host, path) rule, appending "health" to the path
("https://" + host + path + "health").

A MODIFIED event cannot be diffed against its previous state (the watch
API delivers the new object only), so it is handled as a remove-then-add: every existing service for that
(namespace, name) ingress is removed via Monitor.RemoveDelegation, then
the new rule set is added fresh. This is the concrete motivation for
RemoveDelegation existing on Monitor at all.

Filter is an injectable hook so a URL can be excluded from monitoring or
given custom request headers without forking the provider.
*/
package provider
