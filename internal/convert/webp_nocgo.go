//go:build !cgo

package convert

import (
	"errors"
	"image"
	"io"
)

const webpEncoderAvailable = false

func encodeWebP(io.Writer, image.Image, int) error {
	return errors.New("webp encoder requires cgo")
}
