package commands

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/jo-hoe/memereport/internal/backend/commandstructure"

	xdraw "golang.org/x/image/draw"
)

// CropParams represents typed parameters for crop command
type CropParams struct {
	Height int
	Width  int
}

// NewCropParamsFromMap creates CropParams from a generic map
func NewCropParamsFromMap(params map[string]any) (*CropParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"height", "width"}); err != nil {
		return nil, err
	}

	height := commandstructure.GetIntParam(params, "height", 0)
	width := commandstructure.GetIntParam(params, "width", 0)
	if height <= 0 {
		return nil, fmt.Errorf("height must be positive, got %d", height)
	}
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}

	return &CropParams{Height: height, Width: width}, nil
}

// CropCommand cuts the centre region of an image, e.g. to square up memes before scaling
type CropCommand struct {
	name   string
	params *CropParams
}

// NewCropCommand creates a new crop command from configuration parameters
func NewCropCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewCropParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &CropCommand{name: "CropCommand", params: typedParams}, nil
}

// Name returns the command name
func (c *CropCommand) Name() string {
	return c.name
}

// Execute crops the image to the configured dimensions. Images already within bounds are returned unchanged.
func (c *CropCommand) Execute(imageData []byte) ([]byte, error) {
	img, _, err := decodeRaster(imageData)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	cropWidth := min(c.params.Width, bounds.Dx())
	cropHeight := min(c.params.Height, bounds.Dy())
	if cropWidth == bounds.Dx() && cropHeight == bounds.Dy() {
		slog.Debug("CropCommand: no crop needed, dimensions already smaller or equal")
		return imageData, nil
	}

	x0 := bounds.Min.X + (bounds.Dx()-cropWidth)/2
	y0 := bounds.Min.Y + (bounds.Dy()-cropHeight)/2
	slog.Debug("CropCommand: performing center crop",
		"crop_x", x0,
		"crop_y", y0,
		"crop_width", cropWidth,
		"crop_height", cropHeight)

	cropped := image.NewRGBA(image.Rect(0, 0, cropWidth, cropHeight))
	xdraw.Draw(cropped, cropped.Bounds(), img, image.Point{X: x0, Y: y0}, xdraw.Src)

	return encodePNG(cropped)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("CropCommand", NewCropCommand); err != nil {
		panic(fmt.Sprintf("failed to register CropCommand: %v", err))
	}
}
