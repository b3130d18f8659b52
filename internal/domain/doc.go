// Package domain contains the core entities, value objects, and port
// interfaces of the token-metered payment and consumption core.
//
// The domain layer has zero dependency on persistence or transport
// technology: Store, Gateway, and AnalysisEngine are interfaces implemented
// by adapters elsewhere in the module (internal/store/postgres,
// internal/gateway, internal/consumption). Everything in this package is safe for concurrent
// read access once constructed; mutation happens only through the Store
// port's atomic operations.
package domain
