// Package tracker defines the core types shared across the follower tracker subsystems.
//
// A Target is scraped by a Scraper inside an isolated browser Session; each attempt
// terminates in an Outcome, and a batch of outcomes is collected into a BatchReport
// whose totals always reconcile with its entries.
package tracker
