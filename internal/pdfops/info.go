package pdfops

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Info describes a document for the /api/info endpoint.
type Info struct {
	Pages            int        `json:"pages"`
	Title            string     `json:"title"`
	Author           string     `json:"author"`
	Subject          string     `json:"subject"`
	Keywords         string     `json:"keywords"`
	Creator          string     `json:"creator"`
	Producer         string     `json:"producer"`
	CreationDate     string     `json:"creationDate"`
	ModificationDate string     `json:"modificationDate"`
	PageSizes        []PageSize `json:"pageSizes"`
	Rotations        []int      `json:"rotations"`
	FileSize         int64      `json:"fileSize"`
	FileSizeMB       string     `json:"fileSizeMB"`
	FileSizeHuman    string     `json:"fileSizeHuman"`
}

// Inspect reads page count, metadata, page geometry and file size.
func Inspect(path string) (*Info, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	sizes, err := PageSizes(path)
	if err != nil {
		return nil, err
	}
	rotations, err := PageRotations(path)
	if err != nil {
		return nil, err
	}

	size := fileSize(path)
	return &Info{
		Pages:            ctx.XRefTable.PageCount,
		Title:            ctx.XRefTable.Title,
		Author:           ctx.XRefTable.Author,
		Subject:          ctx.XRefTable.Subject,
		Keywords:         ctx.XRefTable.Keywords,
		Creator:          ctx.XRefTable.Creator,
		Producer:         ctx.XRefTable.Producer,
		CreationDate:     ctx.XRefTable.CreationDate,
		ModificationDate: ctx.XRefTable.ModDate,
		PageSizes:        sizes,
		Rotations:        rotations,
		FileSize:         size,
		FileSizeMB:       fmt.Sprintf("%.2f", float64(size)/(1<<20)),
		FileSizeHuman:    humanize.Bytes(uint64(size)),
	}, nil
}
