// Package config loads the kratos registry file: conversation policy, the
// known clusters and the agents with their functions.
//
//	policy:
//	  max_rounds: 10
//	  confidence_floor: 0.35
//	  default_timeout: 300s
//	  retry_attempts: 3
//	  retry_backoff: 1s
//	clusters:
//	  - id: staging
//	    kube_context: staging
//	    active: true
//	agents:
//	  - id: k8s-agent
//	    builtin: true
//	  - id: aks-agent
//	    endpoint: http://aks-agent:8080
//	    functions:
//	      - name: get_pods
//	        description: List pods
//	        params:
//	          - {name: namespace, type: string, default: default}
//
// A Watcher reloads the file when it changes and swaps the capability
// registry snapshot; an invalid file leaves the previous snapshot in place.
package config
