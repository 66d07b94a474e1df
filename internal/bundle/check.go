package bundle

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/genwiki/djvukeeper/internal/pack"
)

var pngPagePattern = regexp.MustCompile(`(\d+)\.png$`)

// CheckPackage validates a packaged archive against the document's page
// metadata and records every finding as a validation problem. It never
// aborts early: one pass reports all defects at once. Validation touches
// only the packaging output, never the live document, so it is safe to
// re-run at any time.
func (o *Operation) CheckPackage(packagePath string) {
	indexName := pack.IndexName(packagePath)

	if !exists(packagePath) {
		o.addProblem(KindValidation, packagePath,
			"Expected package file '%s' was not created", packagePath)
		return
	}
	if !pack.IsArchive(packagePath) {
		o.addProblem(KindValidation, packagePath,
			"Package file '%s' is not a valid archive", packagePath)
		return
	}

	members, err := pack.List(packagePath)
	if err != nil {
		o.addProblem(KindValidation, packagePath,
			"Unexpected error checking package file '%s': %v", packagePath, err)
		return
	}
	if len(members) == 0 {
		o.addProblem(KindValidation, packagePath,
			"Package file '%s' is empty", packagePath)
		return
	}

	var pngs []string
	indexCount := 0
	for _, m := range members {
		if strings.HasSuffix(m, ".png") {
			pngs = append(pngs, m)
		}
		if filepath.Base(m) == indexName {
			indexCount++
		}
	}
	if len(pngs) == 0 {
		o.addProblem(KindValidation, packagePath, "No PNG files found in package")
	}
	if indexCount != 1 {
		o.addProblem(KindValidation, packagePath,
			"Expected exactly one %s file in package, found %d", indexName, indexCount)
	}

	for _, png := range pngs {
		m := pngPagePattern.FindStringSubmatch(filepath.Base(png))
		if m == nil {
			o.addProblem(KindValidation, png,
				"Could not extract page number from PNG: %s", png)
			continue
		}
		pageNum, _ := strconv.Atoi(m[1])
		page := o.Doc.PageByIndex(pageNum)
		if page == nil {
			o.addProblem(KindValidation, png,
				"PNG %s references page %d not in metadata", png, pageNum)
			continue
		}

		data, err := pack.Read(packagePath, png)
		if err != nil {
			o.addProblem(KindValidation, png,
				"Failed to read/validate PNG %s: %v", png, err)
			continue
		}
		width, height, err := pack.ImageSize(data)
		if err != nil {
			o.addProblem(KindValidation, png,
				"Failed to read/validate PNG %s: %v", png, err)
			continue
		}
		if width != page.Width {
			o.addProblem(KindValidation, png,
				"PNG %s width mismatch: expected %d, got %d", png, page.Width, width)
		}
		if height != page.Height {
			o.addProblem(KindValidation, png,
				"PNG %s height mismatch: expected %d, got %d", png, page.Height, height)
		}
	}
}
