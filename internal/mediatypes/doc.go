// Package mediatypes holds the image extension and MIME tables shared by the
// indexer, the HTTP handlers and the command line tool.
//
// # Extension Detection
//
// Use IsImage to decide whether a file is worth indexing:
//
//	if mediatypes.IsImage(path) {
//	    // probe and index it
//	}
//
// # Output Formats
//
// FormatMimeType and FormatExtension map an options.Format to what HTTP
// responses and output files need:
//
//	w.Header().Set("Content-Type", mediatypes.FormatMimeType(options.FormatPNG))
//
// FormatFromExtension goes the other way for output paths such as "out.webp".
package mediatypes
