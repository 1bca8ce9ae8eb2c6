package registry

import (
	"math"
	"time"

	"github.com/c360/bridgekit/types"
)

// matches applies the discovery filters. Entries outside the heartbeat window
// never match.
func matches(cap *types.BridgeCapability, q types.DiscoveryQuery, nowNs int64, window time.Duration) bool {
	if nowNs-cap.LastSeen > int64(window) {
		return false
	}

	if len(q.Domains) > 0 {
		found := false
		for _, d := range q.Domains {
			if cap.Domain == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// Frequency overlap: the bridge's advertised range must cover the query's.
	if q.FreqMinHz > 0 && cap.FreqMaxHz > 0 && cap.FreqMaxHz < q.FreqMinHz {
		return false
	}
	if q.FreqMaxHz > 0 && cap.FreqMinHz > q.FreqMaxHz {
		return false
	}

	if q.MinSampleRate > 0 && cap.MaxSampleRate < q.MinSampleRate {
		return false
	}
	if q.MinReputation > 0 && cap.Reputation < q.MinReputation {
		return false
	}
	if q.MaxCostPerKS > 0 && cap.CostPerKS > q.MaxCostPerKS {
		return false
	}

	for _, t := range q.Transports {
		if !cap.SupportsTransport(t) {
			return false
		}
	}

	if q.Center != nil && q.RadiusKm > 0 {
		if cap.Location == nil {
			return false
		}
		if haversineKm(*q.Center, *cap.Location) > q.RadiusKm {
			return false
		}
	}

	return true
}

// score ranks a surviving candidate:
//
//	reputationWeight(r) * recencyWeight(age) * costWeight(cost)
//
// Recency decays exponentially with the configured half-life; cost weight is
// 1/(1+cost/1000).
func score(cap *types.BridgeCapability, nowNs int64, halfLife time.Duration) float64 {
	repWeight := cap.Reputation / 1000.0

	age := float64(nowNs - cap.LastSeen)
	if age < 0 {
		age = 0
	}
	recency := math.Exp(-math.Ln2 * age / float64(halfLife))

	costWeight := 1.0 / (1.0 + cap.CostPerKS/1000.0)

	return repWeight * recency * costWeight
}

// freqBuckets returns the decade buckets a frequency range spans, for the
// by-frequency index. Bucket n covers [10^n, 10^(n+1)) Hz.
func freqBuckets(minHz, maxHz float64) []int {
	if minHz <= 0 {
		minHz = 1
	}
	if maxHz < minHz {
		maxHz = minHz
	}
	lo := int(math.Floor(math.Log10(minHz)))
	hi := int(math.Floor(math.Log10(maxHz)))
	buckets := make([]int, 0, hi-lo+1)
	for b := lo; b <= hi; b++ {
		buckets = append(buckets, b)
	}
	return buckets
}

const earthRadiusKm = 6371.0

func haversineKm(a, b types.GeoLocation) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
