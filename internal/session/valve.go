package session

import "github.com/juju/ratelimit"

// Valve throttles outbound bytes with a token bucket. A nil Valve is
// unlimited; transmit paths call txWait on whatever they have.
type Valve struct {
	txtb *ratelimit.Bucket
}

// MakeValve builds a valve allowing rate bytes per second of outbound
// traffic, with a burst of the same size.
func MakeValve(rate int64) *Valve {
	return &Valve{txtb: ratelimit.NewBucketWithRate(float64(rate), rate)}
}

func (v *Valve) txWait(n int) {
	if v == nil {
		return
	}
	v.txtb.Wait(int64(n))
}
