// Package gateway implements the ac/ and cas/ request handlers: GET streams a
// stored entry back to the client, PUT checks for an existing entry and
// otherwise streams the request body into the shared store. Storage failures
// are mapped onto HTTP statuses and never terminate the process.
package gateway
