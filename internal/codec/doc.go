// Package codec reads image headers, decodes pixels at a subsampling factor
// and recompresses them into JPEG, PNG or WebP.
//
// Two backends implement [Codec]:
//
//   - [Standard] uses the image/* decoders, golang.org/x/image for WebP, BMP
//     and TIFF input, and github.com/disintegration/imaging for subsampling
//     and EXIF orientation. It cannot write WebP.
//   - [Vips] uses libvips through govips. JPEG sources are shrunk while
//     decoding so the full-size buffer is never allocated, and WebP output
//     is supported.
//
// Allocation failures from either backend are reported as [ErrAllocation] so
// callers can retry with a smaller budget instead of crashing.
package codec
