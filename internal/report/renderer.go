// Package report lays out ranked memes as a multi-page PDF.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"github.com/jo-hoe/memereport/internal/backend/commands"
	"github.com/jo-hoe/memereport/internal/backend/commandstructure"
	"github.com/jo-hoe/memereport/internal/backend/database"
	"github.com/jo-hoe/memereport/internal/common"
)

const (
	pageWidth    = 8.5
	pageHeight   = 11.0
	marginX      = 0.5
	marginTop    = 0.75
	marginBottom = 0.75
	contentWidth = pageWidth - 2*marginX

	captionHeight = 0.25
	cellPadding   = 0.2

	mainTitleSize    = 30.0
	sectionTitleSize = 80.0
	captionSize      = 12.0
	pointsPerInch    = 72.0
	lineSpacing      = 1.2

	customFontFamily = "report"
	coreFontFamily   = "Times"
)

const (
	DefaultTitle           = "X Meme Report"
	DefaultTopTitle        = "Top %d Memes"
	DefaultBottomTitle     = "Bottom %d Memes"
	DefaultEntriesPerPage  = 9
	DefaultColumns         = 3
	DefaultImageSize       = 1.5
	DefaultThumbnailPixels = 450
	DefaultLogoWidth       = 5.42
	DefaultBackgroundColor = "#EFEFEF"
	DefaultTextColor       = "#444444"
	DefaultAccentColor     = "#CB5A4E"
)

var ErrLayoutOverflow = errors.New("grid does not fit on a page")

type Config struct {
	Title string
	// Date is printed under the title
	Date string
	// TopTitle and BottomTitle are format strings receiving the section size
	TopTitle    string
	BottomTitle string
	// TopSize and BottomSize are printed in the section titles; zero uses the list length
	TopSize    int
	BottomSize int

	ImageDir        string
	LogoPath        string
	LogoWidth       float64
	RegularFontPath string
	BoldFontPath    string

	BackgroundColor string
	TextColor       string
	AccentColor     string

	EntriesPerPage  int
	Columns         int
	ImageSize       float64
	ThumbnailPixels int
}

func (c Config) withDefaults() Config {
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.TopTitle == "" {
		c.TopTitle = DefaultTopTitle
	}
	if c.BottomTitle == "" {
		c.BottomTitle = DefaultBottomTitle
	}
	if c.LogoWidth <= 0 {
		c.LogoWidth = DefaultLogoWidth
	}
	if c.BackgroundColor == "" {
		c.BackgroundColor = DefaultBackgroundColor
	}
	if c.TextColor == "" {
		c.TextColor = DefaultTextColor
	}
	if c.AccentColor == "" {
		c.AccentColor = DefaultAccentColor
	}
	if c.EntriesPerPage <= 0 {
		c.EntriesPerPage = DefaultEntriesPerPage
	}
	if c.Columns <= 0 {
		c.Columns = DefaultColumns
	}
	if c.ImageSize <= 0 {
		c.ImageSize = DefaultImageSize
	}
	if c.ThumbnailPixels <= 0 {
		c.ThumbnailPixels = DefaultThumbnailPixels
	}
	return c
}

// Summary describes a rendered document
type Summary struct {
	Pages       int
	TopPages    int
	BottomPages int
	BlankCells  int
}

type Renderer struct {
	config     Config
	background color.RGBA
	text       color.RGBA
	accent     color.RGBA
	thumbnails *commandstructure.CommandInvoker
	logo       *commandstructure.CommandInvoker
}

func NewRenderer(config Config) (*Renderer, error) {
	config = config.withDefaults()

	background, err := common.ParseHexColor(config.BackgroundColor)
	if err != nil {
		return nil, fmt.Errorf("background color: %w", err)
	}
	text, err := common.ParseHexColor(config.TextColor)
	if err != nil {
		return nil, fmt.Errorf("text color: %w", err)
	}
	accent, err := common.ParseHexColor(config.AccentColor)
	if err != nil {
		return nil, fmt.Errorf("accent color: %w", err)
	}

	if config.ImageSize > contentWidth/float64(config.Columns) {
		return nil, fmt.Errorf("%w: %d columns of %.2fin images exceed %.2fin", ErrLayoutOverflow, config.Columns, config.ImageSize, contentWidth)
	}
	rows := PageCount(config.EntriesPerPage, config.Columns)
	if gridTop()+float64(rows)*rowHeight(config.ImageSize) > pageHeight-marginBottom {
		return nil, fmt.Errorf("%w: %d rows of %.2fin images", ErrLayoutOverflow, rows, config.ImageSize)
	}

	scale, err := commands.NewScaleCommandWithParams(config.ThumbnailPixels, config.ThumbnailPixels, background)
	if err != nil {
		return nil, fmt.Errorf("thumbnail command: %w", err)
	}
	thumbnailSize := config.ThumbnailPixels

	return &Renderer{
		config:     config,
		background: background,
		text:       text,
		accent:     accent,
		thumbnails: commandstructure.NewCommandInvoker([]commandstructure.Command{
			commands.NewPngConverterCommandDirect(thumbnailSize, thumbnailSize),
			scale,
		}),
		logo: commandstructure.NewCommandInvoker([]commandstructure.Command{
			commands.NewPngConverterCommandDirect(thumbnailSize*4, thumbnailSize*4),
		}),
	}, nil
}

// Render writes the title page, the top section and the bottom section to w
func (r *Renderer) Render(w io.Writer, top, bottom []database.Meme) (Summary, error) {
	pdf := fpdf.New("P", "in", "Letter", "")
	pdf.SetMargins(marginX, marginTop, marginX)
	pdf.SetAutoPageBreak(false, marginBottom)
	pdf.SetTitle(r.config.Title, true)
	pdf.SetCreator("memereport", true)
	pdf.SetHeaderFuncMode(func() {
		pdf.SetFillColor(int(r.background.R), int(r.background.G), int(r.background.B))
		pdf.Rect(0, 0, pageWidth, pageHeight, "F")
	}, false)

	family, err := r.registerFonts(pdf)
	if err != nil {
		return Summary{}, err
	}

	page := &pageWriter{pdf: pdf, renderer: r, family: family}
	summary := Summary{}

	page.titlePage()

	summary.TopPages = page.section(sectionTitle(r.config.TopTitle, r.config.TopSize, len(top)), top, &summary)
	summary.BottomPages = page.section(sectionTitle(r.config.BottomTitle, r.config.BottomSize, len(bottom)), bottom, &summary)
	summary.Pages = pdf.PageNo()

	if err := pdf.Output(w); err != nil {
		return summary, fmt.Errorf("failed to write PDF: %w", err)
	}
	slog.Info("Renderer: report rendered",
		"pages", summary.Pages,
		"top_entries", len(top),
		"bottom_entries", len(bottom),
		"blank_cells", summary.BlankCells)
	return summary, nil
}

func sectionTitle(format string, size, count int) string {
	if size <= 0 {
		size = count
	}
	return fmt.Sprintf(format, size)
}

// registerFonts embeds the configured TTF files, or falls back to the core Times font
func (r *Renderer) registerFonts(pdf *fpdf.Fpdf) (string, error) {
	if r.config.RegularFontPath == "" || r.config.BoldFontPath == "" {
		return coreFontFamily, nil
	}
	regular, regularErr := os.ReadFile(r.config.RegularFontPath)
	bold, boldErr := os.ReadFile(r.config.BoldFontPath)
	if regularErr != nil || boldErr != nil {
		slog.Warn("Renderer: font files unavailable, using core font",
			"regular", r.config.RegularFontPath,
			"bold", r.config.BoldFontPath,
			"error", errors.Join(regularErr, boldErr))
		return coreFontFamily, nil
	}

	pdf.AddUTF8FontFromBytes(customFontFamily, "", regular)
	pdf.AddUTF8FontFromBytes(customFontFamily, "B", bold)
	if err := pdf.Error(); err != nil {
		return "", fmt.Errorf("failed to load fonts: %w", err)
	}
	return customFontFamily, nil
}

// thumbnail registers the image of one meme with the document. ok is false when
// the file is missing or cannot be decoded.
func (r *Renderer) thumbnail(pdf *fpdf.Fpdf, localFile string) (name string, ok bool) {
	name = "meme/" + localFile
	if info := pdf.GetImageInfo(name); info != nil {
		return name, true
	}
	if localFile == "" || filepath.Base(localFile) != localFile {
		slog.Warn("Renderer: invalid image file name", "local_file", localFile)
		return "", false
	}

	data, err := os.ReadFile(filepath.Join(r.config.ImageDir, localFile))
	if err != nil {
		slog.Warn("Renderer: image unavailable, rendering blank cell", "local_file", localFile, "error", err)
		return "", false
	}
	thumbnail, err := r.thumbnails.Execute(data)
	if err != nil {
		slog.Warn("Renderer: image not decodable, rendering blank cell", "local_file", localFile, "error", err)
		return "", false
	}

	pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(thumbnail))
	return name, pdf.Ok()
}

func (r *Renderer) logoImage(pdf *fpdf.Fpdf) (name string, aspect float64, ok bool) {
	if r.config.LogoPath == "" {
		return "", 0, false
	}
	data, err := os.ReadFile(r.config.LogoPath)
	if err != nil {
		slog.Warn("Renderer: logo unavailable", "path", r.config.LogoPath, "error", err)
		return "", 0, false
	}
	logo, err := r.logo.Execute(data)
	if err != nil {
		slog.Warn("Renderer: logo not decodable", "path", r.config.LogoPath, "error", err)
		return "", 0, false
	}

	name = "logo"
	info := pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(logo))
	if !pdf.Ok() || info == nil || info.Width() == 0 {
		return "", 0, false
	}
	return name, info.Height() / info.Width(), true
}

func gridTop() float64 {
	return marginTop + cellPadding
}

func rowHeight(imageSize float64) float64 {
	return imageSize + 2*captionHeight + 2*cellPadding
}

func lineHeight(fontSize float64) float64 {
	return fontSize * lineSpacing / pointsPerInch
}
