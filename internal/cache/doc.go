// Package cache implements the normalized object store shared by every
// document of a client.
//
// Objects in a response are flattened into records keyed by an identity key.
// The key is built from the object's type name and its key fields
// ("User:1"); objects without a usable identity get a key scoped to their
// path under the parent record ("_ROOT_.viewer", "User:1.friends[2]"). Such
// path-scoped keys do not deduplicate the same entity across documents.
//
// A record maps a field's evaluated raw key (arguments included, for example
// `node(id: "1")`) to a scalar value, a Link to another record, a LinkList
// for list fields, or a NestedLinks for lists of lists of objects. Writing an object merges fields into the existing record;
// it never replaces the record wholesale. Reads never create records.
//
// Documents register a Subscription for as long as their data is observed.
// CollectGarbage marks every record reachable from an active subscription,
// closes over every link of a marked record, and evicts the rest. Collection
// never runs as part of Read or Write.
//
// A Cache is safe for concurrent use. Each Write is applied under one lock, so
// readers observe all of it or none of it.
package cache
