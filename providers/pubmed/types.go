// Package pubmed liest die gzip-komprimierten PubMed-XML-Dumps und die
// jährlichen MeSH-Deskriptoren.
package pubmed

import (
	"encoding/xml"
	"strings"
)

// Text sammelt den gesamten Zeichentext eines Elements inklusive
// verschachtelter Auszeichnung (<i>, <sup>, ...). Entitäten sind aufgelöst.
type Text string

// UnmarshalXML implementiert xml.Unmarshaler.
func (t *Text) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.CharData:
			b.Write(v)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				*t = Text(b.String())
				return nil
			}
			depth--
		}
	}
}

// PubmedArticle ist ein einzelner Eintrag eines PubmedArticleSet.
type PubmedArticle struct {
	MedlineCitation MedlineCitation `xml:"MedlineCitation"`
	PubmedData      PubmedData      `xml:"PubmedData"`

	// Raw hält das Roh-XML für Fehlerdumps.
	Raw []byte `xml:",innerxml"`
}

type MedlineCitation struct {
	PMID         string        `xml:"PMID"`
	Article      Article       `xml:"Article"`
	MeshHeadings []MeshHeading `xml:"MeshHeadingList>MeshHeading"`
}

type Article struct {
	Journal         Journal  `xml:"Journal"`
	ArticleTitle    Text     `xml:"ArticleTitle"`
	VernacularTitle Text     `xml:"VernacularTitle"`
	Authors         []Author `xml:"AuthorList>Author"`
}

type Journal struct {
	ISSN            string  `xml:"ISSN"`
	Title           string  `xml:"Title"`
	ISOAbbreviation string  `xml:"ISOAbbreviation"`
	PubDate         PubDate `xml:"JournalIssue>PubDate"`
}

// PubDate enthält entweder Year/Month/Day oder den Freitext MedlineDate.
type PubDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	Season      string `xml:"Season"`
	MedlineDate string `xml:"MedlineDate"`
}

type Author struct {
	ValidYN         string            `xml:"ValidYN,attr"`
	LastName        string            `xml:"LastName"`
	ForeName        string            `xml:"ForeName"`
	Initials        string            `xml:"Initials"`
	Suffix          string            `xml:"Suffix"`
	CollectiveName  Text              `xml:"CollectiveName"`
	AffiliationInfo []AffiliationInfo `xml:"AffiliationInfo"`
}

type AffiliationInfo struct {
	Affiliation Text `xml:"Affiliation"`
}

type MeshHeading struct {
	Descriptor struct {
		UI   string `xml:"UI,attr"`
		Name string `xml:",chardata"`
	} `xml:"DescriptorName"`
}

type PubmedData struct {
	References []Reference `xml:"ReferenceList>Reference"`
}

type Reference struct {
	ArticleIDs []ArticleID `xml:"ArticleIdList>ArticleId"`
}

type ArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// DeleteCitation listet PMIDs, die die Update-Dateien zurückziehen.
type DeleteCitation struct {
	PMIDs []string `xml:"PMID"`
}

// DescriptorRecord ist ein Eintrag aus desc<year>.xml.
type DescriptorRecord struct {
	UI          string   `xml:"DescriptorUI"`
	Name        string   `xml:"DescriptorName>String"`
	TreeNumbers []string `xml:"TreeNumberList>TreeNumber"`
}
