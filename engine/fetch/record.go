package fetch

import (
	"strconv"
	"strings"
	"time"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
)

// articleSet mirrors the efetch PubmedArticleSet XML envelope, trimmed to
// the fields the pipeline consumes.
type articleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Journal struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate pubDate `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Texts []abstractText `xml:"AbstractText"`
			} `xml:"Abstract"`
		} `xml:"Article"`
		Keywords []string `xml:"KeywordList>Keyword"`
	} `xml:"MedlineCitation"`
}

type abstractText struct {
	Label       string `xml:"Label,attr"`
	NlmCategory string `xml:"NlmCategory,attr"`
	Body        string `xml:",chardata"`
}

type pubDate struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

// nlmSections maps efetch NlmCategory attributes to canonical section names.
var nlmSections = map[string]domain.SectionName{
	"BACKGROUND":  domain.SectionBackground,
	"OBJECTIVE":   domain.SectionObjective,
	"METHODS":     domain.SectionMethods,
	"RESULTS":     domain.SectionResults,
	"CONCLUSIONS": domain.SectionConclusions,
}

// document converts one efetch record into a Document. Labeled abstract
// segments become pre-parsed sections when every label maps to a canonical
// name; otherwise the labels are kept inline and section detection runs
// downstream. Records without a PMID are dropped.
func (a pubmedArticle) document() (domain.Document, bool) {
	cit := a.Citation
	if cit.PMID == "" {
		return domain.Document{}, false
	}

	doc := domain.Document{
		UID:         "pubmed:" + cit.PMID,
		Source:      "pubmed",
		Title:       strings.TrimSpace(cit.Article.Title),
		PublishedAt: cit.Article.Journal.Issue.PubDate.time(),
	}

	texts := cit.Article.Abstract.Texts
	var parts []string
	sections := make([]domain.Section, 0, len(texts))
	parseable := len(texts) > 1
	for i, t := range texts {
		body := strings.TrimSpace(t.Body)
		if body == "" {
			continue
		}
		label := strings.TrimSpace(t.Label)
		if label != "" {
			parts = append(parts, label+": "+body)
		} else {
			parts = append(parts, body)
		}
		name, ok := nlmSections[strings.ToUpper(t.NlmCategory)]
		if !ok {
			parseable = false
			continue
		}
		sections = append(sections, domain.Section{Name: name, Body: body, Order: i})
	}
	doc.Text = strings.Join(parts, "\n")
	if parseable && len(sections) > 0 {
		doc.Sections = sections
	}

	meta := map[string]string{}
	if j := strings.TrimSpace(cit.Article.Journal.Title); j != "" {
		meta["journal"] = j
	}
	if len(cit.Keywords) > 0 {
		kws := make([]string, 0, len(cit.Keywords))
		for _, k := range cit.Keywords {
			if k = strings.TrimSpace(k); k != "" {
				kws = append(kws, k)
			}
		}
		if len(kws) > 0 {
			meta[domain.MetaKeywords] = strings.Join(kws, ", ")
		}
	}
	if len(meta) > 0 {
		doc.Meta = meta
	}

	return doc, true
}

// time parses a PubDate. Month appears both as a number and as an English
// abbreviation; missing parts default to January the 1st.
func (p pubDate) time() time.Time {
	year, err := strconv.Atoi(p.Year)
	if err != nil {
		return time.Time{}
	}
	month := time.January
	if m, err := strconv.Atoi(p.Month); err == nil && m >= 1 && m <= 12 {
		month = time.Month(m)
	} else if t, err := time.Parse("Jan", p.Month); err == nil {
		month = t.Month()
	}
	day := 1
	if d, err := strconv.Atoi(p.Day); err == nil && d >= 1 && d <= 31 {
		day = d
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
