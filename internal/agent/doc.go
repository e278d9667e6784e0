// Package agent contains the core orchestrator that turns natural-language
// requests into previewed and executed Sui transactions. It chains the
// intent resolver, the encrypted contact directory, the transaction planner
// and the execution coordinator, and records completed executions.
package agent
