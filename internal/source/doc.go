// Package source turns a request's locator into a local file the codec can
// read.
//
// Three resolvers are provided, tried in this order by the dispatcher:
//
//   - [Local] accepts file: locators and bare paths. The spool is the file
//     itself and is never deleted.
//   - [Remote] accepts http: and https: locators. The body is streamed to a
//     fresh spool file, which Cleanup deletes.
//   - [Indexed] accepts media: locators, either media://<id> or
//     media:///<relative path>, and looks the file up in the media index.
//
// Resolvers keep no per-request state; the request is always passed in.
package source
