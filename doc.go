// Package topdown is a top-down semantic analysis driver. Given a batch of
// parsed files and an ordered set of symbol providers it resolves every
// declaration into descriptors, binds references and types, and reports
// diagnostics.
//
// # Pipeline
//
// An analysis run moves through fixed passes:
//
//  1. Collect: build descriptor skeletons for every declaration in the
//     batch. Nothing is resolved yet, so forward references across files
//     work regardless of order.
//
//  2. Signatures: resolve supertypes, parameter and return types on
//     demand. Each declaration is computed at most once; illegal
//     inheritance cycles are reported instead of recursing.
//
//  3. Bodies: in [Full] mode, resolve function bodies and property
//     initializers, recording every lookup in the [lookup.Tracker].
//
//  4. Complete: freeze the bindings and run the [Extension] chain.
//
// # Usage
//
//	mc := topdown.NewModuleContext("project", "app")
//	res := topdown.Analyze(ctx, mc, files, topdown.Full, targets, components, parts)
//	if res.IsError() { ... }
//	for _, d := range res.Diagnostics { ... }
//
// # Providers
//
// Declarations are looked up in a fixed order: the current batch, each
// target's incremental cache, providers registered with
// [WithProviderExtensions], then the platform built-ins and libraries. The
// first provider that declares a fully-qualified name wins, so fresh source
// always shadows stale cached parts.
//
// # Extensions
//
// Extensions run once after a run that did not fail, in registration
// order. The first extension that returns a result replaces the analysis
// result and stops the chain. The internal/runtime package implements
// extensions as Risor scripts.
package topdown
