// Package analysis is the read-only query engine over the normalized
// clinical-trial store. It exposes three stateless operations:
//
//  1. Overview: cohort-wide descriptive counts.
//  2. StatisticalAnalysis: responders vs non-responders comparison of
//     per-sample cell population frequencies, Mann-Whitney U per
//     (population, sample type) combination, plus a box-plot chart artifact.
//  3. SubsetAnalysis: the same relative-frequency breakdown restricted to an
//     AND-composed attribute filter.
//
// SampleFrequencies additionally exposes the raw per-sample relative
// frequency table the UI renders on its overview tab.
//
// Every percentage uses the full per-sample cell total as denominator, so
// results stay correct as the open population set grows. Operations hold no
// mutable state and are safe to run concurrently; results are pure
// recomputations, leaving caching to the caller.
package analysis
