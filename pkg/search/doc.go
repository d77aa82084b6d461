// Package search runs catalog searches on behalf of an authenticated
// caller.
//
// # Overview
//
// A search request carries three things: the client's query document (a
// JSON string with optional "query", "filters", "from" and "size" keys),
// the caller's authorization context and a DatasetFiltering mode derived
// from the onlyPublic/onlyPrivate request flags. The service compiles the
// request with the query package, hands the compiled query to the
// configured store and flattens the store's answer into SearchResults.
//
// # Usage
//
//	service := search.NewSearchService(backend)
//	params := search.ParseSearchParams(r.URL.Query())
//	params.Auth = auth
//	results, err := service.Search(ctx, params)
//
// Counting every entry the caller may see:
//
//	total, err := service.Count(ctx, auth, query.PrivateAndPublic)
//
// # Errors
//
// Errors are returned wrapped around the catalog error kinds:
//
//   - catalog.ErrInvalidQuery: the query document is malformed, or the
//     store rejected the compiled query.
//   - catalog.ErrIndexUnavailable: the store could not be reached.
//
// Both are logged before being returned.
package search
