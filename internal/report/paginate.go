package report

// Paginate splits a ranked list into pages of pageSize entries. The last page may be short.
// An empty list yields no pages.
func Paginate[T any](items []T, pageSize int) [][]T {
	if pageSize <= 0 || len(items) == 0 {
		return nil
	}
	pages := make([][]T, 0, PageCount(len(items), pageSize))
	for start := 0; start < len(items); start += pageSize {
		end := min(start+pageSize, len(items))
		pages = append(pages, items[start:end])
	}
	return pages
}

// Rows splits one page into grid rows of the given width
func Rows[T any](page []T, columns int) [][]T {
	return Paginate(page, columns)
}

// PageCount is ceil(count / pageSize)
func PageCount(count, pageSize int) int {
	if pageSize <= 0 || count <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}
