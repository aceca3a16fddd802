// Package fetch performs single batch requests against a remote paginated
// source under the shared admission gate.
//
// Every request is admitted by a gate.Gate and bounded by a per-batch
// timeout. Failures are reported as *FetchError with one of three kinds:
//
//   - timeout: the source did not answer before the deadline (retryable)
//   - transport: the source returned an error (retryable unless the cause
//     reports otherwise through a Retryable method)
//   - cancelled: the caller's context ended; the result is discarded
//
// The permit is released on every exit path, including timeouts whose
// underlying query is still running. The concurrency cap therefore holds
// at the source only when the source stops work once its context is done.
//
// Example usage:
//
//	g := gate.New(3)
//	fetcher := fetch.NewFetcher[Ticket](source, g, fetch.DefaultConfig())
//	batch, err := fetcher.Fetch(ctx, fetch.Request{
//		Key:        filter.Normalize(fs),
//		Filters:    fs,
//		BatchIndex: 0,
//	})
//
// FetchRange fetches a run of consecutive batches concurrently for
// server-side jobs, still admitting each request through the gate.
package fetch
