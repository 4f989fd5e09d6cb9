package report

import (
	"fmt"
	"image/color"

	"github.com/go-pdf/fpdf"

	"github.com/jo-hoe/memereport/internal/backend/database"
)

// pageWriter holds the drawing state of one document
type pageWriter struct {
	pdf      *fpdf.Fpdf
	renderer *Renderer
	family   string
}

func (p *pageWriter) setTextColor(c color.RGBA) {
	p.pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
}

func (p *pageWriter) centred(text string, size float64, style string, c color.RGBA) {
	p.pdf.SetFont(p.family, style, size)
	p.setTextColor(c)
	p.pdf.SetX(marginX)
	p.pdf.MultiCell(contentWidth, lineHeight(size), text, "", "C", false)
}

func (p *pageWriter) titlePage() {
	config := p.renderer.config
	p.pdf.AddPage()
	y := marginTop + 1

	if name, aspect, ok := p.renderer.logoImage(p.pdf); ok {
		width := config.LogoWidth
		height := width * aspect
		// Keep the title on the first page for tall logos
		if maxHeight := pageHeight / 2; height > maxHeight {
			height = maxHeight
			width = height / aspect
		}
		x := (pageWidth - width) / 2
		p.pdf.ImageOptions(name, x, y, width, height, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		y += height + 0.25
	}

	p.pdf.SetY(y)
	p.centred(config.Title, mainTitleSize, "B", p.renderer.accent)
	if config.Date != "" {
		p.pdf.SetY(p.pdf.GetY() + 0.25)
		p.centred(config.Date, mainTitleSize, "B", p.renderer.accent)
	}
}

// section writes the section title page and the grid pages and returns the grid page count
func (p *pageWriter) section(title string, memes []database.Meme, summary *Summary) int {
	config := p.renderer.config

	p.pdf.AddPage()
	p.pdf.SetY(pageHeight / 4)
	p.centred(title, sectionTitleSize, "B", p.renderer.text)

	pages := Paginate(memes, config.EntriesPerPage)
	for pageIndex, entries := range pages {
		p.pdf.AddPage()
		firstRank := pageIndex*config.EntriesPerPage + 1
		for rowIndex, row := range Rows(entries, config.Columns) {
			for column, meme := range row {
				rank := firstRank + rowIndex*config.Columns + column
				if !p.cell(rowIndex, column, rank, meme) {
					summary.BlankCells++
				}
			}
		}
	}
	return len(pages)
}

// cell draws one grid cell and reports whether it has content
func (p *pageWriter) cell(row, column, rank int, meme database.Meme) bool {
	config := p.renderer.config
	columnWidth := contentWidth / float64(config.Columns)
	x := marginX + float64(column)*columnWidth
	y := gridTop() + float64(row)*rowHeight(config.ImageSize)

	name, ok := p.renderer.thumbnail(p.pdf, meme.LocalFile)
	if !ok {
		return false
	}

	imageX := x + (columnWidth-config.ImageSize)/2
	p.pdf.ImageOptions(name, imageX, y, config.ImageSize, config.ImageSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	p.pdf.SetFont(p.family, "", captionSize)
	captionY := y + config.ImageSize + cellPadding/2

	p.setTextColor(p.renderer.text)
	p.pdf.SetXY(x, captionY)
	p.pdf.CellFormat(columnWidth, captionHeight, fmt.Sprintf("%d. %s", rank, meme.Date), "", 0, "C", false, 0, "")

	p.setTextColor(p.renderer.accent)
	p.pdf.SetXY(x, captionY+captionHeight)
	p.pdf.CellFormat(columnWidth, captionHeight, fmt.Sprintf("Likes: %d", meme.LikesCount), "", 0, "C", false, 0, "")
	return true
}
