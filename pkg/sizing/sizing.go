/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sizing derives the concurrency degree for a batch run from the
// job count, the configured concurrency ceiling, and the token budget.
package sizing

// OptimalConcurrency returns how many batches should run in parallel for a
// session of totalJobs jobs. The result is the minimum of three independent
// ceilings: the job count itself, the configured hard limit, and the number
// of average-cost batches the token budget can statistically support
// (totalBudget / avgTokensPerJob, floored).
//
// The result never drops below 1, so a budget that is tight relative to the
// average cost degrades to serial execution rather than refusing to run. A
// non-positive avgTokensPerJob disables the budget ceiling.
//
// The function is pure and is evaluated once before a run starts; it does
// not adapt as real per-batch costs diverge from the average.
func OptimalConcurrency(totalJobs, maxConcurrent int, avgTokensPerJob, totalBudget int64) int {
	limit := maxConcurrent
	if totalJobs < limit {
		limit = totalJobs
	}
	if avgTokensPerJob > 0 {
		byBudget := int(totalBudget / avgTokensPerJob)
		if byBudget < limit {
			limit = byBudget
		}
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}
