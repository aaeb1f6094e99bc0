// Package cache provides declarative read-through caching for operations
// whose results are addressed by typed keys.
//
// # Keys
//
// A [Key] names a value; a [BlobKey] additionally names the blob
// [Container] it lives in. Keys are small value types built by the calling
// feature area from the arguments it already has:
//
//	type PublicationKey struct{ Slug string }
//
//	func (k PublicationKey) Key() string          { return cache.JoinPath("publications", k.Slug, "publication.json") }
//	func (k PublicationKey) Container() cache.Container { return cache.ContainerPublicContent }
//
// # Expiry
//
// An [ExpiryPolicy] is a duration plus an optional [Schedule]. When a
// schedule is set the value expires at the earlier of the duration and the
// next hour or half-hour boundary (UTC), so every instance flushes at the
// same wall-clock moments. A zero duration caches nothing useful: the next
// lookup misses.
//
// # Services
//
// Two kinds of service hold values:
//
//   - [MemoryService], implemented by [Memory]: in-process, synchronous, no
//     delete. Entries only lapse by expiry, since deleting from one process
//     would leave every other instance serving the old value.
//
//   - [BlobService], implemented by [Blob] over a blobstore.Storage: remote,
//     context-aware, with [BlobService.DeleteItem] and
//     [BlobService.DeleteCacheFolder] for explicit invalidation. A blob which
//     cannot be decoded into the requested type is logged and treated as a
//     miss so a stored schema can evolve; storage failures are returned.
//
// Services are registered by name in the [Dispatcher]'s registries. A
// directive without a service name uses the first one registered.
//
// # Directives and Exec
//
// A directive binds an operation to a key type and a policy, and is
// usually a package-level variable:
//
//	var treeMemory = cache.MustMemoryDirective[TreeKey](policy, cache.WithPriority(1))
//	var treeBlob = cache.MustBlobDirective[TreeKey]()
//
// Each call binds the directives to the key for that call and passes the
// operation to [Exec]:
//
//	tree, err := cache.Exec(ctx, d, source.Load, treeMemory.For(key), treeBlob.For(key))
//
// Bindings are consulted in descending priority. A hit returns at once and
// refills the higher-priority bindings that missed; a miss everywhere
// invokes the operation once and stores its result in every binding. A
// disabled dispatcher, or one with no matching service registered, invokes
// the operation directly. [ExecSync] is the synchronous, memory-only form.
//
// # Concurrency
//
// Services and the dispatcher are safe for concurrent use. There is no
// single-flight protection: concurrent misses for one key each invoke the
// operation and each store the result, and the last store wins. Operations
// must tolerate being invoked more than once.
//
// # Errors
//
// Bad directives, policies and registrations are marked [ErrConfiguration].
// Context cancellations are marked [ErrCancelled] so outer layers can
// answer "request cancelled" rather than report a failure. Errors returned
// by the operation itself are passed through unchanged and never cached.
package cache
