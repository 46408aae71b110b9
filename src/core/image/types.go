package image

import "errors"

var (
	ErrEmpty          = errors.New("image is empty")
	ErrTooLarge       = errors.New("image exceeds the size limit")
	ErrFormat         = errors.New("unsupported image format")
	ErrUndecodable    = errors.New("image cannot be decoded")
	ErrDimensions     = errors.New("image dimensions exceed the limit")
	ErrSuspiciousData = errors.New("image contains suspicious content")
)

// Info what validation learned about an upload
type Info struct {
	Format   string // decoder name: png, jpeg, gif, webp, bmp
	Width    int
	Height   int
	FileSize int64
}
