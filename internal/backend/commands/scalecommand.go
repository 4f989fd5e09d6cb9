package commands

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/jo-hoe/memereport/internal/backend/commandstructure"
	"github.com/jo-hoe/memereport/internal/common"

	xdraw "golang.org/x/image/draw"
)

// ScaleParams represents typed parameters for scale command
type ScaleParams struct {
	Height     int
	Width      int
	Background color.RGBA
}

// NewScaleParamsFromMap creates ScaleParams from a generic map
func NewScaleParamsFromMap(params map[string]any) (*ScaleParams, error) {
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

	background, err := common.ParseHexColor(commandstructure.GetStringParam(params, "background", "#FFFFFF"))
	if err != nil {
		return nil, err
	}

	return &ScaleParams{
		Height:     height,
		Width:      width,
		Background: background,
	}, nil
}

// ScaleCommand fits an image into a fixed canvas, preserving aspect ratio and centring it
type ScaleCommand struct {
	name   string
	params *ScaleParams
}

// NewScaleCommand creates a new scale command from configuration parameters
func NewScaleCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewScaleParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ScaleCommand{name: "ScaleCommand", params: typedParams}, nil
}

// NewScaleCommandWithParams creates a new scale command from concrete typed parameters
func NewScaleCommandWithParams(height, width int, background color.RGBA) (*ScaleCommand, error) {
	if height <= 0 {
		return nil, fmt.Errorf("height must be positive, got %d", height)
	}
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}
	background.A = 255
	return &ScaleCommand{
		name: "ScaleCommand",
		params: &ScaleParams{
			Height:     height,
			Width:      width,
			Background: background,
		},
	}, nil
}

// Name returns the command name
func (c *ScaleCommand) Name() string {
	return c.name
}

// GetParams returns the typed parameters
func (c *ScaleCommand) GetParams() *ScaleParams {
	return c.params
}

// Execute scales the image into the target canvas. The output is always an opaque 8-bit PNG.
func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	img, _, err := decodeRaster(imageData)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("cannot scale empty image")
	}

	targetWidth, targetHeight := c.params.Width, c.params.Height
	scaledWidth, scaledHeight := computeScaledDimensions(bounds.Dx(), bounds.Dy(), targetWidth, targetHeight)
	offsetX, offsetY := (targetWidth-scaledWidth)/2, (targetHeight-scaledHeight)/2

	slog.Debug("ScaleCommand: scaling image",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"scaled_width", scaledWidth,
		"scaled_height", scaledHeight)

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	xdraw.Draw(dst, dst.Bounds(), &image.Uniform{C: c.params.Background}, image.Point{}, xdraw.Src)

	target := image.Rect(offsetX, offsetY, offsetX+scaledWidth, offsetY+scaledHeight)
	xdraw.CatmullRom.Scale(dst, target, img, bounds, xdraw.Over, nil)

	return encodePNG(dst)
}

// computeScaledDimensions returns the largest size with the original aspect ratio that fits the target
func computeScaledDimensions(originalWidth, originalHeight, targetWidth, targetHeight int) (int, int) {
	originalAspect := float64(originalWidth) / float64(originalHeight)
	targetAspect := float64(targetWidth) / float64(targetHeight)
	if originalAspect > targetAspect {
		// Original is wider - scale to target width
		return targetWidth, max(1, int(float64(targetWidth)/originalAspect))
	}
	// Original is taller - scale to target height
	return max(1, int(float64(targetHeight)*originalAspect)), targetHeight
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("ScaleCommand", NewScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register ScaleCommand: %v", err))
	}
}
