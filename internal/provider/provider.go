// Package provider defines the provider-agnostic verification contract.
//
// Each IDV provider adapter parses its own proprietary status vocabulary and
// normalizes it into a three-way Outcome, keeping the session orchestrator
// decoupled from any specific provider API.
package provider

import (
	"context"
	"fmt"

	"attest/internal/identity"
)

// OutcomeStatus is the normalized result of a provider verification check.
type OutcomeStatus string

const (
	// OutcomePass means the provider verified the user; attributes are populated.
	OutcomePass OutcomeStatus = "pass"

	// OutcomeRetryable means the result is not available yet or the provider
	// is temporarily unreachable. The session stays in progress.
	OutcomeRetryable OutcomeStatus = "retryable"

	// OutcomeFail means the provider explicitly rejected the check. Terminal.
	OutcomeFail OutcomeStatus = "fail"
)

// Outcome is the normalized verification result returned by every adapter.
type Outcome struct {
	Status     OutcomeStatus
	Attributes identity.Attributes // populated only when Status == OutcomePass
	Reason     string              // populated for Retryable and Fail
}

// Pass builds a passing outcome carrying the verified attributes.
func Pass(attrs identity.Attributes) Outcome {
	return Outcome{Status: OutcomePass, Attributes: attrs}
}

// Retryable builds an outcome for results that are not ready yet.
func Retryable(reason string) Outcome {
	return Outcome{Status: OutcomeRetryable, Reason: reason}
}

// Fail builds a terminal failure outcome.
func Fail(reason string) Outcome {
	return Outcome{Status: OutcomeFail, Reason: reason}
}

// Verifier is the universal interface all IDV provider adapters implement.
//
// Validate fetches and normalizes the full check result for a provider
// reference. Attributes fetches only the applicant attributes for a
// reference already known to have passed; the nullifier-replay issuance path
// uses it to re-derive credentials without re-running validation.
type Verifier interface {
	// Name returns a unique identifier for this provider (e.g. "onfido").
	Name() string

	// Validate fetches the check for ref and normalizes it.
	// Returns a ProviderError on transport failures with normalized
	// categories for retry decisions.
	Validate(ctx context.Context, ref string) (Outcome, error)

	// Attributes fetches the applicant attributes for a previously
	// validated reference without re-evaluating check results.
	Attributes(ctx context.Context, ref string) (identity.Attributes, error)

	// Health checks if the provider API is reachable.
	Health(ctx context.Context) error
}

// Registry maintains all registered verifiers indexed by provider name.
// Not thread-safe; register all providers during initialization.
type Registry struct {
	verifiers map[string]Verifier
}

func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Register adds a verifier to the registry, keyed by its name.
// Returns an error if a verifier with the same name is already registered.
func (r *Registry) Register(v Verifier) error {
	name := v.Name()
	if _, exists := r.verifiers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.verifiers[name] = v
	return nil
}

func (r *Registry) Get(name string) (Verifier, bool) {
	v, ok := r.verifiers[name]
	return v, ok
}

func (r *Registry) All() []Verifier {
	result := make([]Verifier, 0, len(r.verifiers))
	for _, v := range r.verifiers {
		result = append(result, v)
	}
	return result
}
