package providers

import (
	"math"
	"sync/atomic"
)

// callMeter tracks lifetime calls, failures, and estimated spend for
// one adapter. Safe for concurrent use.
type callMeter struct {
	calls     atomic.Uint64
	failures  atomic.Uint64
	costMicro atomic.Uint64 // USD in millionths, avoids a float mutex
}

func (m *callMeter) record(err error, costUSD float64) {
	m.calls.Add(1)
	if err != nil {
		m.failures.Add(1)
		return
	}
	if costUSD > 0 {
		m.costMicro.Add(uint64(math.Round(costUSD * 1e6)))
	}
}

func (m *callMeter) stats() CallStats {
	return CallStats{
		Calls:    m.calls.Load(),
		Failures: m.failures.Load(),
		CostUSD:  float64(m.costMicro.Load()) / 1e6,
	}
}
