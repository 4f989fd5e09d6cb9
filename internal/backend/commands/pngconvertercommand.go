package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/jo-hoe/memereport/internal/backend/commandstructure"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

var (
	svgTagPattern  = regexp.MustCompile(`(?is)<svg\b[^>]*>`)
	svgSizePattern = regexp.MustCompile(`(?i)\b(width|height)\s*=\s*["']\s*(\d+)`)
)

// PngConverterCommand converts fetched media (JPEG, GIF, BMP, TIFF, WebP, SVG) into PNG
type PngConverterCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
}

// NewPngConverterCommand creates a new PNG converter command
func NewPngConverterCommand(params map[string]any) (commandstructure.Command, error) {
	// Optional SVG fallback dimensions, used only when the SVG lacks an explicit size
	w := commandstructure.GetIntParam(params, "svgFallbackWidth", 0)
	h := commandstructure.GetIntParam(params, "svgFallbackHeight", 0)
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("svg fallback size must not be negative, got %dx%d", w, h)
	}
	return NewPngConverterCommandDirect(w, h), nil
}

// NewPngConverterCommandDirect creates a new PNG converter command from concrete values
func NewPngConverterCommandDirect(svgFallbackWidth, svgFallbackHeight int) *PngConverterCommand {
	return &PngConverterCommand{
		name:              "PngConverterCommand",
		svgFallbackWidth:  svgFallbackWidth,
		svgFallbackHeight: svgFallbackHeight,
	}
}

// Name returns the command name
func (c *PngConverterCommand) Name() string {
	return c.name
}

func (c *PngConverterCommand) Execute(imageData []byte) ([]byte, error) {
	// PNG input is returned untouched
	if hasCorrectPngSignature(imageData) {
		return imageData, nil
	}

	if isSVGData(imageData) {
		return c.convertSVG(imageData)
	}

	img, format, err := decodeRaster(imageData)
	if err != nil {
		return nil, err
	}
	slog.Debug("PngConverterCommand: converting raster image",
		"current_format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())

	return encodePNG(img)
}

func (c *PngConverterCommand) convertSVG(imageData []byte) ([]byte, error) {
	w, h, ok := parseSvgExplicitSize(imageData)
	if !ok {
		w, h = c.svgFallbackWidth, c.svgFallbackHeight
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("SVG fallback size not set; cannot render SVG without explicit size")
		}
	}
	slog.Debug("PngConverterCommand: rendering SVG", "width", w, "height", h, "explicit_size", ok)

	out, err := renderSVGToPNG(imageData, w, h)
	if err != nil {
		return nil, fmt.Errorf("failed to render SVG to PNG: %w", err)
	}
	return out, nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("PngConverterCommand", NewPngConverterCommand); err != nil {
		panic(fmt.Sprintf("failed to register PngConverterCommand: %v", err))
	}
}

// isSVGData looks for an <svg> element in the first 4KB
func isSVGData(data []byte) bool {
	n := min(len(data), 4096)
	return svgTagPattern.Match(data[:n])
}

// parseSvgExplicitSize reads pixel width/height attributes from the root <svg> tag.
// A viewBox alone is not treated as a pixel size.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	n := min(len(data), 8192)
	tag := svgTagPattern.Find(data[:n])
	if tag == nil {
		return 0, 0, false
	}

	var w, h int
	for _, m := range svgSizePattern.FindAllSubmatch(tag, -1) {
		v, err := strconv.Atoi(string(m[2]))
		if err != nil {
			continue
		}
		switch string(bytes.ToLower(m[1])) {
		case "width":
			w = v
		case "height":
			h = v
		}
	}
	return w, h, w > 0 && h > 0
}

// renderSVGToPNG renders an SVG on a white canvas of the given size
func renderSVGToPNG(svgData []byte, targetW, targetH int) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)

	return encodePNG(dst)
}
