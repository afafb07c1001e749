// Package domains wires the generic permission engine to the three resource
// domains: document buckets, the global storage tier, and the prompt library.
package domains
