// Package plugins provides the built-in pipeline plugins of a client: cache
// policy enforcement, query and mutation bookkeeping, network dispatch,
// subscriptions and request throttling.
//
// A client installs them in this order: CachePolicy, Query, Mutation, caller
// plugins, Subscription, Fetch. CachePolicy comes first so a cached result
// short-circuits before anything else runs; Fetch comes last so the network
// is only reached when nothing earlier resolved.
package plugins
