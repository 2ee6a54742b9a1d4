package client

import "sync"

// weightedRoundRobin selects replicas proportionally to their weights.
type weightedRoundRobin struct {
	mu            sync.Mutex
	currentIndex  int
	currentWeight int
}

func newWeightedRoundRobin() *weightedRoundRobin {
	return &weightedRoundRobin{currentIndex: -1}
}

// Next returns the next replica from candidates using weighted
// round-robin, skipping excluded names. Returns nil when no candidate is
// selectable.
func (wrr *weightedRoundRobin) Next(candidates []*replica, exclude map[string]bool) *replica {
	wrr.mu.Lock()
	defer wrr.mu.Unlock()

	replicas := filterExcluded(candidates, exclude)
	if len(replicas) == 0 {
		return nil
	}
	if len(replicas) == 1 {
		return replicas[0]
	}

	gcd := gcdWeights(replicas)
	max := maxWeight(replicas)

	for {
		wrr.currentIndex = (wrr.currentIndex + 1) % len(replicas)

		if wrr.currentIndex == 0 {
			wrr.currentWeight -= gcd
			if wrr.currentWeight <= 0 {
				wrr.currentWeight = max
			}
		}

		r := replicas[wrr.currentIndex]
		if r.Weight() >= wrr.currentWeight {
			return r
		}
	}
}

// filterExcluded removes excluded replicas from the list
func filterExcluded(replicas []*replica, exclude map[string]bool) []*replica {
	if len(exclude) == 0 {
		return replicas
	}

	result := make([]*replica, 0, len(replicas))
	for _, r := range replicas {
		if !exclude[r.Name()] {
			result = append(result, r)
		}
	}
	return result
}

// gcdWeights calculates the GCD of all replica weights
func gcdWeights(replicas []*replica) int {
	if len(replicas) == 0 {
		return 1
	}

	result := replicas[0].Weight()
	for i := 1; i < len(replicas); i++ {
		result = gcd(result, replicas[i].Weight())
	}
	return result
}

// maxWeight returns the maximum weight among replicas
func maxWeight(replicas []*replica) int {
	max := 0
	for _, r := range replicas {
		if r.Weight() > max {
			max = r.Weight()
		}
	}
	return max
}

// gcd calculates the greatest common divisor
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
