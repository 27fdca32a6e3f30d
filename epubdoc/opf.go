package epubdoc

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/quillreader/quill/htmltext"
)

// packageDoc is the parsed package descriptor: document metadata plus the
// manifest and resolved spine. Built once per open and immutable afterward.
type packageDoc struct {
	title    string
	author   string
	language string
	manifest map[string]manifestItem
	spine    []spineItem
	baseDir  string // descriptor's own directory, for resolving hrefs
}

// parseRootFile reads the descriptor pointer file and returns the package
// descriptor's container path from its full-path attribute.
func parseRootFile(data []byte) (string, error) {
	var opfPath string
	scanElements(string(data), "rootfile", func(tag string) bool {
		opfPath = htmltext.AttrValue(tag, "full-path")
		return opfPath == ""
	})
	if opfPath == "" {
		return "", ErrNoRootFile
	}
	return opfPath, nil
}

// parsePackage parses the package descriptor at opfPath's content. Metadata
// elements are read from their first occurrence as raw inner text; manifest
// items and reading-order references follow. Spine references to unknown
// manifest ids are skipped.
func parsePackage(data []byte, opfPath string) (*packageDoc, error) {
	doc := string(data)

	pkg := &packageDoc{
		title:    firstElementText(doc, "dc:title"),
		author:   firstElementText(doc, "dc:creator"),
		language: firstElementText(doc, "dc:language"),
		manifest: make(map[string]manifestItem),
	}
	if pkg.language == "" {
		pkg.language = "en"
	}
	if dir := path.Dir(opfPath); dir != "." {
		pkg.baseDir = dir
	}

	scanElements(doc, "item", func(tag string) bool {
		item := manifestItem{
			ID:        htmltext.AttrValue(tag, "id"),
			Href:      htmltext.AttrValue(tag, "href"),
			MediaType: htmltext.AttrValue(tag, "media-type"),
		}
		if props := htmltext.AttrValue(tag, "properties"); props != "" {
			item.Properties = strings.Fields(props)
		}
		if item.ID != "" && item.Href != "" {
			pkg.manifest[item.ID] = item
		}
		return true
	})

	scanElements(doc, "itemref", func(tag string) bool {
		idref := htmltext.AttrValue(tag, "idref")
		item, ok := pkg.manifest[idref]
		if !ok {
			// Unknown reference; the reading order simply skips it.
			return true
		}
		pkg.spine = append(pkg.spine, spineItem{
			IDRef: idref,
			Path:  pkg.resolveHref(item.Href),
		})
		return true
	})

	if len(pkg.spine) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySpine, opfPath)
	}
	return pkg, nil
}

// resolveHref maps a manifest href to a container path, undoing URL escaping
// packaging tools apply to names with spaces.
func (p *packageDoc) resolveHref(href string) string {
	if decoded, err := url.QueryUnescape(href); err == nil {
		href = decoded
	}
	if p.baseDir == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(p.baseDir, href))
}
