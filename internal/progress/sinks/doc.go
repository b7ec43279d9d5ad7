// Package sinks implements progress consumers: a job sink that keeps live
// progress on refresh jobs and a structured log sink.
package sinks
