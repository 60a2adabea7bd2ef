// Package service provides business logic for the funnel platform.
package service

import (
	"errors"
)

// Sentinel errors returned by services. Handlers map these to HTTP status
// codes in one place; everything else is a 500.
var (
	ErrFunnelNotFound   = errors.New("funnel not found")
	ErrResourceNotFound = errors.New("resource not found")
	ErrSessionNotFound  = errors.New("session not found")

	// ErrFunnelDeployed rejects deleting a funnel that is live.
	ErrFunnelDeployed = errors.New("funnel is deployed")

	// ErrFunnelNotDeployed rejects starting a chat against a funnel that
	// is not live.
	ErrFunnelNotDeployed = errors.New("funnel is not deployed")

	// ErrNoFlow rejects deploy and layout for a funnel that has no flow
	// yet.
	ErrNoFlow = errors.New("funnel has no flow")

	// ErrInvalidFlow rejects a flow that fails structural validation.
	// The wrapped message carries the individual validation errors.
	ErrInvalidFlow = errors.New("flow is not valid")

	// ErrGenerationInProgress enforces single-flight generation per
	// funnel.
	ErrGenerationInProgress = errors.New("generation already in progress")

	// ErrSessionNotActive rejects messages to a completed or abandoned
	// session.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrLLMUnavailable is returned when no provider API key was
	// configured.
	ErrLLMUnavailable = errors.New("no LLM provider configured")
)
