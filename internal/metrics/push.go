// SPDX-License-Identifier: MIT
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/vodsaver/vodsaver/internal/log"
)

// Push sends the default registry to a Pushgateway, grouped by job name.
// A push failure is logged and swallowed: an unreachable gateway must not
// turn a completed archive run into a failed one.
func Push(ctx context.Context, gatewayURL, job string) {
	if gatewayURL == "" {
		return
	}

	logger := log.WithComponent("metrics")
	err := push.New(gatewayURL, job).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("gateway", gatewayURL).Msg("metrics push failed")
		return
	}
	logger.Debug().Str("gateway", gatewayURL).Str("job", job).Msg("metrics pushed")
}
