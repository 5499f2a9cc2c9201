package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsTotal counts connection attempts by final outcome.
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshtrust_connections_total",
			Help: "Total number of SSH connection attempts by outcome",
		},
		[]string{"outcome"},
	)

	// HostKeyVerifications counts host-key checks by policy and result.
	HostKeyVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshtrust_hostkey_verifications_total",
			Help: "Total number of host key verifications by policy and result",
		},
		[]string{"policy", "result"},
	)

	// KeyOperations counts user-key lifecycle operations.
	KeyOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshtrust_key_operations_total",
			Help: "Total number of user key operations",
		},
		[]string{"op"},
	)
)
