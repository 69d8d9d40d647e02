// Package hunt holds the value types shared by the resolvers, the decode
// engine and the dispatcher: the per-request state ([Request]), the failure
// taxonomy ([Error] and its [Reason]s) and the callback contract used to
// deliver outcomes.
//
// # Errors
//
// Every failure that reaches a caller is an [*Error]. Matching is by reason:
//
//	if errors.Is(err, hunt.ErrNotFound) {
//	    // the locator did not point at anything
//	}
//
// Cancellation is not a failure reason. A canceled request ends with
// [ErrCanceled] inside the engine and is never delivered through OnError.
//
// # Keys and tags
//
// A request's key identifies logically identical work (same locator, same
// resolved options) and drives deduplication. Its tag identifies the caller
// and drives cancellation; when the caller supplies none a random UUID is used.
package hunt
