package otel

import (
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Attribute keys attached to the node resource and to per-call telemetry.
const (
	ModulesKey         = attribute.Key("energy.modules")
	PausedModulesKey   = attribute.Key("energy.modules.paused")
	TokenCustodianKey  = attribute.Key("energy.custodian.token")
	EscrowCustodianKey = attribute.Key("energy.custodian.escrow")
	ModuleKey          = attribute.Key("energy.module")
	OperationKey       = attribute.Key("energy.operation")
)

// NativeModules lists the modules every node hosts.
var NativeModules = []string{"bank", "escrow", "market", "token"}

// Node describes the running node for the telemetry resource.
type Node struct {
	Modules         []string
	Paused          []string
	TokenCustodian  string
	EscrowCustodian string
}

func (n Node) attributes() []attribute.KeyValue {
	modules := n.Modules
	if len(modules) == 0 {
		modules = NativeModules
	}
	attrs := []attribute.KeyValue{ModulesKey.StringSlice(normalizeModules(modules))}
	if paused := normalizeModules(n.Paused); len(paused) > 0 {
		attrs = append(attrs, PausedModulesKey.StringSlice(paused))
	}
	if n.TokenCustodian != "" {
		attrs = append(attrs, TokenCustodianKey.String(n.TokenCustodian))
	}
	if n.EscrowCustodian != "" {
		attrs = append(attrs, EscrowCustodianKey.String(n.EscrowCustodian))
	}
	return attrs
}

func normalizeModules(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BuildResource merges the SDK defaults with the service identity and the
// node description.
func BuildResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	attrs = append(attrs, cfg.Node.attributes()...)
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// OperationAttributes splits a call label such as "market.list_offer" into
// module and operation attributes.
func OperationAttributes(label string) []attribute.KeyValue {
	module, _, found := strings.Cut(label, ".")
	if !found {
		module = "node"
	}
	return []attribute.KeyValue{ModuleKey.String(module), OperationKey.String(label)}
}
