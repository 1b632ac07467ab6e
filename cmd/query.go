package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pubmed-graph/filter"
)

type queryFlags struct {
	presets string
	preset  string
	f       filter.Filters
	s       filter.Settings
}

// merge legt die gesetzten Flags über das Preset.
func (q *queryFlags) merge(base filter.Preset) (filter.Filters, filter.Settings) {
	f, s := base.Filters, base.Settings
	overrideString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overrideString(&f.Journal, q.f.Journal)
	overrideString(&f.MeshName, q.f.MeshName)
	overrideString(&f.Author, q.f.Author)
	overrideString(&f.Title, q.f.Title)
	overrideString(&f.Affiliation, q.f.Affiliation)
	overrideString(&f.PublishedAfter, q.f.PublishedAfter)
	overrideString(&f.PublishedBefore, q.f.PublishedBefore)
	if len(q.f.MeshIDs) > 0 {
		f.MeshIDs = q.f.MeshIDs
	}
	if q.f.NodeLimit != 0 {
		f.NodeLimit = q.f.NodeLimit
	}
	f.FirstAuthorOnly = f.FirstAuthorOnly || q.f.FirstAuthorOnly
	f.LastAuthorOnly = f.LastAuthorOnly || q.f.LastAuthorOnly

	s.Articles = s.Articles || q.s.Articles
	s.Authors = s.Authors || q.s.Authors
	s.Journals = s.Journals || q.s.Journals
	s.Affiliations = s.Affiliations || q.s.Affiliations
	s.Mesh = s.Mesh || q.s.Mesh
	s.Citations = s.Citations || q.s.Citations
	s.CitationCounts = s.CitationCounts || q.s.CitationCounts
	return f, s
}

func queryCmd() *cobra.Command {
	var q queryFlags
	command := &cobra.Command{
		Use:   "query",
		Short: "Filterabfrage gegen den Graphen ausführen und als JSON ausgeben",
		RunE: func(cmd *cobra.Command, args []string) error {
			var base filter.Preset
			if q.preset != "" {
				if q.presets == "" {
					return fmt.Errorf("--preset requires --presets")
				}
				presets, err := filter.LoadPresets(q.presets)
				if err != nil {
					return err
				}
				p, ok := presets[q.preset]
				if !ok {
					return fmt.Errorf("preset %q not found in %s", q.preset, q.presets)
				}
				base = p
			}
			f, s := q.merge(base)

			ctx := cmd.Context()
			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.queries()
			if err != nil {
				return err
			}
			res, err := svc.Query(ctx, f, s)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	flags := command.Flags()
	flags.StringVar(&q.presets, "presets", "", "YAML-Datei mit benannten Filtern")
	flags.StringVar(&q.preset, "preset", "", "Name des Presets aus --presets")
	flags.StringVar(&q.f.Journal, "journal", "", "Journaltitel")
	flags.StringVar(&q.f.MeshName, "mesh-name", "", "MeSH-Deskriptorname")
	flags.Int64SliceVar(&q.f.MeshIDs, "mesh-id", nil, "MeSH-Deskriptor-ID (mehrfach)")
	flags.StringVar(&q.f.Author, "author", "", "Autorenname")
	flags.StringVar(&q.f.Title, "title", "", "Artikeltitel")
	flags.StringVar(&q.f.Affiliation, "affiliation", "", "Affiliation")
	flags.BoolVar(&q.f.FirstAuthorOnly, "first-author", false, "nur Erstautoren")
	flags.BoolVar(&q.f.LastAuthorOnly, "last-author", false, "nur Letztautoren")
	flags.StringVar(&q.f.PublishedAfter, "after", "", "veröffentlicht ab (YYYY-MM-DD)")
	flags.StringVar(&q.f.PublishedBefore, "before", "", "veröffentlicht bis (YYYY-MM-DD)")
	flags.IntVar(&q.f.NodeLimit, "limit", 0, "maximale Zeilenzahl")
	flags.BoolVar(&q.s.Articles, "articles", false, "Artikel zurückgeben")
	flags.BoolVar(&q.s.Authors, "authors", false, "Autoren zurückgeben")
	flags.BoolVar(&q.s.Journals, "journals", false, "Journale zurückgeben")
	flags.BoolVar(&q.s.Affiliations, "affiliations", false, "Affiliations zurückgeben")
	flags.BoolVar(&q.s.Mesh, "mesh", false, "MeSH-Deskriptoren zurückgeben")
	flags.BoolVar(&q.s.Citations, "citations", false, "Zitatkanten zurückgeben")
	flags.BoolVar(&q.s.CitationCounts, "citation-counts", false, "Zitatzahlen zurückgeben")
	return command
}
