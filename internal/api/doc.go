// Package api exposes the inbound REST surface: chat/intent parsing,
// transaction execution (synchronous and task-based), encrypted contact
// management and health. Handlers are thin adapters over the agent and task
// services.
package api
