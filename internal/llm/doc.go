// Package llm contains adapters for invoking large language models under a
// strict function-calling contract. The model must answer with exactly one
// call from a fixed tool set (enum-constrained arguments, no extra fields);
// anything else is either a clarification request or a pipeline fault.
package llm
