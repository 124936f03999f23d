// Package providers holds the building blocks shared by built-in provider
// plugins: the OAuth2 refresh contract and the REST capability builder that
// classifies provider responses into tagged results.
package providers
