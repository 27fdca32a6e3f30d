package epubdoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The navigation documents, unlike the package descriptor, are genuinely
// nested structures, so they get real parsers: encoding/xml for the EPUB 2
// NCX and an HTML parse for the EPUB 3 nav document.

var errNoNavElement = errors.New("epub: navigation document has no toc nav")

// ncxDocument is the EPUB 2 NCX navigation document.
type ncxDocument struct {
	XMLName xml.Name  `xml:"ncx"`
	Title   string    `xml:"docTitle>text"`
	NavMap  ncxNavMap `xml:"navMap"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	Label    string        `xml:"navLabel>text"`
	Content  ncxContent    `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// TableOfContents returns the book's navigation structure, parsed on first
// use and cached for the document's lifetime. An EPUB 3 nav document wins
// over an EPUB 2 NCX; with neither, the spine itself becomes the outline.
func (d *Document) TableOfContents() *TableOfContents {
	if d.toc != nil {
		return d.toc
	}
	if d.pkg == nil {
		return &TableOfContents{}
	}
	d.toc = d.parseNavigation()
	return d.toc
}

func (d *Document) parseNavigation() *TableOfContents {
	if item := d.findNavDocument(); item != nil {
		if content, err := d.archive.Extract(d.pkg.resolveHref(item.Href)); err == nil {
			if toc, err := parseNavDocument(content); err == nil {
				return toc
			}
		}
	}

	if item := d.findNCX(); item != nil {
		if content, err := d.archive.Extract(d.pkg.resolveHref(item.Href)); err == nil {
			if toc, err := parseNCX(content); err == nil {
				return toc
			}
		}
	}

	return d.tocFromSpine()
}

// findNavDocument finds the manifest item carrying the "nav" property.
func (d *Document) findNavDocument() *manifestItem {
	for _, item := range d.pkg.manifest {
		for _, prop := range item.Properties {
			if prop == "nav" {
				return &item
			}
		}
	}
	return nil
}

// findNCX finds the NCX document by its media type.
func (d *Document) findNCX() *manifestItem {
	for _, item := range d.pkg.manifest {
		if item.MediaType == "application/x-dtbncx+xml" {
			return &item
		}
	}
	return nil
}

// parseNavDocument parses an EPUB 3 nav document: the <nav> element typed
// "toc", its heading as the title, and its nested lists as entries.
func parseNavDocument(content []byte) (*TableOfContents, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var nav *goquery.Selection
	doc.Find("nav").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		kind, _ := s.Attr("epub:type")
		if kind == "" {
			kind, _ = s.Attr("type")
		}
		if strings.Contains(kind, "toc") {
			nav = s
			return false
		}
		return true
	})
	if nav == nil {
		return nil, errNoNavElement
	}

	toc := &TableOfContents{
		Title: strings.TrimSpace(nav.Find("h1, h2, h3, h4, h5, h6").First().Text()),
	}
	if list := nav.Find("ol").First(); list.Length() > 0 {
		toc.Entries = parseNavList(list)
	}
	return toc, nil
}

func parseNavList(list *goquery.Selection) []TOCEntry {
	var entries []TOCEntry
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		var entry TOCEntry

		if a := li.ChildrenFiltered("a").First(); a.Length() > 0 {
			entry.Title = strings.TrimSpace(a.Text())
			entry.Href, _ = a.Attr("href")
		} else if span := li.ChildrenFiltered("span").First(); span.Length() > 0 {
			entry.Title = strings.TrimSpace(span.Text())
		}
		if sub := li.ChildrenFiltered("ol").First(); sub.Length() > 0 {
			entry.Children = parseNavList(sub)
		}

		if entry.Title != "" || entry.Href != "" {
			entries = append(entries, entry)
		}
	})
	return entries
}

func parseNCX(content []byte) (*TableOfContents, error) {
	var ncx ncxDocument
	if err := xml.Unmarshal(content, &ncx); err != nil {
		return nil, err
	}
	return &TableOfContents{
		Title:   strings.TrimSpace(ncx.Title),
		Entries: ncxEntries(ncx.NavMap.NavPoints),
	}, nil
}

func ncxEntries(points []ncxNavPoint) []TOCEntry {
	entries := make([]TOCEntry, 0, len(points))
	for _, p := range points {
		entries = append(entries, TOCEntry{
			Title:    strings.TrimSpace(p.Label),
			Href:     p.Content.Src,
			Children: ncxEntries(p.Children),
		})
	}
	return entries
}

// tocFromSpine builds a flat outline from the reading order when the book
// ships no navigation document.
func (d *Document) tocFromSpine() *TableOfContents {
	toc := &TableOfContents{
		Title:   d.pkg.title,
		Entries: make([]TOCEntry, 0, len(d.pkg.spine)),
	}
	for _, s := range d.pkg.spine {
		toc.Entries = append(toc.Entries, TOCEntry{Title: s.IDRef, Href: s.Path})
	}
	return toc
}
