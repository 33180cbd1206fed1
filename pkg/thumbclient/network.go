package thumbclient

import "time"

// Quality is the classified network tier, ordered from worst to best
type Quality int

const (
	QualityPoor Quality = iota
	QualityFair
	QualityGood
	QualityExcellent
)

func (q Quality) String() string {
	switch q {
	case QualityPoor:
		return "poor"
	case QualityFair:
		return "fair"
	case QualityGood:
		return "good"
	case QualityExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// Signals are the connection hints available to the client. Zero values
// mean the hint is unknown.
type Signals struct {
	Online bool
	// EffectiveType is one of slow-2g, 2g, 3g, 4g
	EffectiveType string
	DownlinkMbps  float64
	RTT           time.Duration
}

// Classify maps connection signals to a quality tier. The effective type
// sets the starting tier; slow downlink or high latency can only lower it,
// and a fast, low-latency link raises a 4g or unknown type to excellent.
func Classify(s Signals) Quality {
	if !s.Online {
		return QualityPoor
	}

	q := QualityGood
	switch s.EffectiveType {
	case "slow-2g", "2g":
		q = QualityPoor
	case "3g":
		q = QualityFair
	}

	if q == QualityGood && s.DownlinkMbps >= 10 && s.RTT > 0 && s.RTT <= 100*time.Millisecond {
		q = QualityExcellent
	}

	switch {
	case s.DownlinkMbps > 0 && s.DownlinkMbps < 0.5:
		q = min(q, QualityPoor)
	case s.DownlinkMbps > 0 && s.DownlinkMbps < 2:
		q = min(q, QualityFair)
	}
	switch {
	case s.RTT >= time.Second:
		q = min(q, QualityPoor)
	case s.RTT >= 400*time.Millisecond:
		q = min(q, QualityFair)
	}
	return q
}

// Policy bounds retries for one quality tier
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicies gives poorer networks more retries and longer delays
var DefaultPolicies = map[Quality]Policy{
	QualityPoor:      {MaxRetries: 5, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
	QualityFair:      {MaxRetries: 4, BaseDelay: time.Second, MaxDelay: 15 * time.Second},
	QualityGood:      {MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second},
	QualityExcellent: {MaxRetries: 2, BaseDelay: 250 * time.Millisecond, MaxDelay: 4 * time.Second},
}

// PolicyFor returns the default policy of a tier
func PolicyFor(q Quality) Policy {
	if p, ok := DefaultPolicies[q]; ok {
		return p
	}
	return DefaultPolicies[QualityPoor]
}
