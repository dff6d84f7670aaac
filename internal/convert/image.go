package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	ico "github.com/sergeymakinen/go-ico"
	_ "golang.org/x/image/webp"
)

// Максимальная сторона ICO.
const icoMaxSide = 256

func decodeImageFrom(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, decodeErr(err)
	}
	return img, nil
}

func decodeImage(c *call) (image.Image, error) {
	f, err := c.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeImageFrom(f)
}

// flatten накладывает изображение на белый фон (для форматов без альфа-канала).
func flatten(img image.Image) image.Image {
	bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// fit уменьшает изображение так, чтобы большая сторона не превышала maxSide.
// Пропорции сохраняются, увеличение не выполняется.
func fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}

// encodeImage кодирует изображение в целевой формат с учётом Options.
func encodeImage(w io.Writer, img image.Image, target string, opts Options) error {
	img = fit(img, opts.MaxDimension)

	switch target {
	case "webp":
		if err := encodeWebP(w, img, opts.ImageQuality); err != nil {
			return encodeErr(err)
		}
		return nil
	case "ico":
		if err := ico.Encode(w, fit(img, icoMaxSide)); err != nil {
			return encodeErr(err)
		}
		return nil
	}

	f, err := imaging.FormatFromExtension(target)
	if err != nil {
		return encodeErr(err)
	}
	if f == imaging.JPEG {
		img = flatten(img)
	}
	err = imaging.Encode(w, img, f,
		imaging.JPEGQuality(opts.ImageQuality),
		imaging.PNGCompressionLevel(png.BestCompression),
	)
	if err != nil {
		return encodeErr(err)
	}
	return nil
}

// imageToImage перекодирует растровое изображение.
func imageToImage(ctx context.Context, c *call) error {
	img, err := decodeImage(c)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return encodeImage(c.w, img, c.target, c.opts)
}

// imageToPDF помещает изображение на страницу его размера (1 px = 1 pt).
func imageToPDF(ctx context.Context, c *call) error {
	img, err := decodeImage(c)
	if err != nil {
		return err
	}
	img = flatten(fit(img, c.opts.MaxDimension))

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return encodeErr(err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w, h := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	pw := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pw.SetMargins(0, 0, 0)
	pw.SetAutoPageBreak(false, 0)
	pw.SetCreator("converter-module", true)
	pw.SetTitle(c.name, true)
	pw.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})

	const name = "image"
	pw.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, &buf)
	pw.ImageOptions(name, 0, 0, w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	if err := pw.Error(); err != nil {
		return encodeErr(fmt.Errorf("pdf image: %w", err))
	}
	if err := pw.Output(c.w); err != nil {
		return encodeErr(err)
	}
	return nil
}
