package correlation

import (
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/types"
)

// route resolves adaptive mode by evaluating constraints in priority order:
//
//  1. hard latency bound below the local threshold: co-located streams run
//     local, anything else cannot meet the bound;
//  2. critical privacy with cross-source streams: privacy-preserving, never
//     remote;
//  3. micro compute budget: local when co-located, else remote;
//  4. default: remote.
//
// A stated hard constraint is never silently violated: when no mode can
// satisfy it the request fails with ErrConstraintUnsatisfiable instead of
// falling back.
func (e *Engine) route(req *types.CorrelationRequest) (types.ExecutionMode, error) {
	sameSource := req.SameSource()
	hardLatency := req.MaxLatency > 0 && req.MaxLatency < e.config.LocalLatencyThreshold

	if hardLatency {
		if sameSource {
			return types.ModeLocal, nil
		}
		// Cross-source data movement alone blows a sub-threshold budget.
		return "", errors.Wrap(errors.ErrConstraintUnsatisfiable, "Engine", "route",
			"hard latency bound with cross-source streams")
	}

	if req.Privacy == types.PrivacyCritical && !sameSource {
		return types.ModePrivacy, nil
	}

	if req.ComputeBudget == types.BudgetMicro {
		if sameSource {
			return types.ModeLocal, nil
		}
		return types.ModeRemote, nil
	}

	return types.ModeRemote, nil
}
