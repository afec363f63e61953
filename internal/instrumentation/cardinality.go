package instrumentation

import "strings"

// ClusterType groups cluster names into a small label set.
type ClusterType string

const (
	ClusterTypeProduction  ClusterType = "production"
	ClusterTypeStaging     ClusterType = "staging"
	ClusterTypeDevelopment ClusterType = "development"
	ClusterTypeLocal       ClusterType = "local"
	ClusterTypeNone        ClusterType = "none"
	ClusterTypeOther       ClusterType = "other"
)

type clusterRule struct {
	kind     ClusterType
	prefixes []string
	contains []string
	suffixes []string
}

// Rules are checked in order; the first match wins.
var clusterRules = []clusterRule{
	{
		kind:     ClusterTypeLocal,
		prefixes: []string{"kind-", "minikube", "docker-desktop", "k3d-"},
		contains: []string{"local"},
	},
	{
		kind:     ClusterTypeProduction,
		prefixes: []string{"prod-", "prod_", "prd-"},
		contains: []string{"production", "-prod-"},
		suffixes: []string{"-prod", "-prd"},
	},
	{
		kind:     ClusterTypeStaging,
		prefixes: []string{"staging-", "stg-", "stage-"},
		contains: []string{"staging", "-stg-"},
		suffixes: []string{"-stg", "-stage"},
	},
	{
		kind:     ClusterTypeDevelopment,
		prefixes: []string{"dev-", "dev_", "test-", "demo"},
		contains: []string{"development", "-dev-", "-test-"},
		suffixes: []string{"-dev", "-test"},
	},
}

// ClassifyClusterName maps a cluster ID to a ClusterType label so metrics do
// not carry one series per cluster.
//
//	ClassifyClusterName("")            // "none"
//	ClassifyClusterName("prod-eu-1")   // "production"
//	ClassifyClusterName("staging")     // "staging"
//	ClassifyClusterName("kind-kratos") // "local"
//	ClassifyClusterName("blue")        // "other"
func ClassifyClusterName(name string) string {
	if name == "" {
		return string(ClusterTypeNone)
	}
	lower := strings.ToLower(name)
	for _, rule := range clusterRules {
		if rule.matches(lower) {
			return string(rule.kind)
		}
	}
	return string(ClusterTypeOther)
}

func (r clusterRule) matches(name string) bool {
	for _, p := range r.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	for _, c := range r.contains {
		if strings.Contains(name, c) {
			return true
		}
	}
	for _, s := range r.suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
