// Package component defines the lifecycle interface shared by the parts of
// a running pipeline and a registry that starts and stops them in order.
//
// Stage groups, the status server and output devices all implement
// Component. A Registry starts them in registration order, stops them in
// reverse, and reports their health for the status endpoint.
//
// Lazy adapts resources that should only be opened when first used.
package component
