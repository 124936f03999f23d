// Package core contains the integration domain contracts, the provider
// registry, the function dispatcher, and the refresh coordinator. Storage,
// locking, and provider adapters depend on this package; core must not depend
// on provider-specific or transport-specific adapters.
package core
