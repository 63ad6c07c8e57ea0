// Package storage keeps uploaded question images (stems, options, explanations).
package storage

import "io"

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	SignedURL(key string) (string, error) // URL a browser can fetch the blob from
}
