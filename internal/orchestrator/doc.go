// Package orchestrator handles one incoming message end to end.
//
// A message is optionally enriched with recalled memories, decomposed into a
// task graph, and executed as lifecycle runs in dependency order. A task that
// depends on another receives its output as upstream context. When a
// prerequisite fails its dependents are never spawned and are reported as
// failed. The finished runs are merged into one reply by the aggregator.
//
// Example usage:
//
//	o := orchestrator.New(orchestrator.RequiredConfig{
//		Agents:     reg,
//		Decomposer: decompose.New(rt, logger),
//		Manager:    lifecycle.NewManager(exec, lifecycle.Options{}),
//	}, orchestrator.WithEmitter(emitter))
//	reply, err := o.Handle(ctx, "先查一下天气，然后写一首诗")
package orchestrator
