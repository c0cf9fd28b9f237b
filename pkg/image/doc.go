// Package image implements the on-disk nsi image format from spec.md §3-4.A:
// a four-byte magic, a big-endian version and header-length prefix, a JSON
// header, and a zlib-compressed tar payload. Write and Open never
// materialize the whole payload in memory; Extract consumes the payload
// reader Open hands back one tar entry at a time.
package image
