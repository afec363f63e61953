package instrumentation

import "testing"

func TestClassifyClusterName(t *testing.T) {
	tests := []struct {
		input    string
		expected ClusterType
	}{
		{"", ClusterTypeNone},
		{"prod-eu-1", ClusterTypeProduction},
		{"eu-prod", ClusterTypeProduction},
		{"my-production-env", ClusterTypeProduction},
		{"staging", ClusterTypeStaging},
		{"STG-west", ClusterTypeStaging},
		{"dev-team-a", ClusterTypeDevelopment},
		{"team-a-test", ClusterTypeDevelopment},
		{"kind-kratos", ClusterTypeLocal},
		{"minikube", ClusterTypeLocal},
		{"blue", ClusterTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ClassifyClusterName(tt.input); got != string(tt.expected) {
				t.Errorf("ClassifyClusterName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
