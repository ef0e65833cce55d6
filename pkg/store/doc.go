// Package store is a unidirectional data-flow store.
//
// State changes only through Dispatch, which runs the reducer and then
// notifies subscribers synchronously in subscription order. Long running
// work such as HTTP loading lives in handlers registered with WithEffect
// (run for every matching action) or WithLatestEffect (previous run is
// cancelled). Handlers report back with EffectAPI.Put.
//
// Reducers must treat state as immutable. The path helpers (SetPath,
// AppendPath, MergePath, TogglePath) copy only the maps and slices along the
// path they change, so unrelated branches keep their identity and bindings
// that read them do not fire.
package store
