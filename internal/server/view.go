package server

import (
	"bytes"
	_ "embed"
	"html/template"
	"sort"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/motti-landau/kvstore"
)

//go:embed view.html.tmpl
var pageSource string

var pageTemplate = template.Must(template.New("page").Parse(pageSource))

// PageOptions describe where a rendered page came from and, for the live
// server, where it polls and posts. Empty endpoints give a static page.
type PageOptions struct {
	Namespace    string
	DataSource   string
	PollEndpoint string
	APIEndpoint  string
}

// View renders snapshots as a single HTML page. Values are Markdown; raw
// HTML inside a value is dropped.
type View struct {
	md goldmark.Markdown
}

func NewView() *View {
	return &View{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)}
}

type pageRecord struct {
	Key       string
	Tags      []string
	Body      template.HTML
	CreatedAt string
	UpdatedAt string
	ExpiresAt string
}

type pageTag struct {
	Name  string
	Count int
}

type pageData struct {
	PageOptions
	Version uint64
	Records []pageRecord
	Tags    []pageTag
}

func (v *View) Render(snap kvstore.Snapshot, opts PageOptions) ([]byte, error) {
	data := pageData{PageOptions: opts, Version: snap.Version}
	counts := map[string]int{}
	for _, r := range snap.Sorted() {
		var body bytes.Buffer
		if err := v.md.Convert([]byte(r.Value), &body); err != nil {
			return nil, err
		}
		pr := pageRecord{
			Key:       r.Key,
			Tags:      r.Tags,
			Body:      template.HTML(body.String()),
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
			UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
		}
		if r.ExpiresAt != nil {
			pr.ExpiresAt = r.ExpiresAt.Format(time.RFC3339)
		}
		for _, t := range r.Tags {
			counts[t]++
		}
		data.Records = append(data.Records, pr)
	}
	for name, n := range counts {
		data.Tags = append(data.Tags, pageTag{Name: name, Count: n})
	}
	sort.Slice(data.Tags, func(i, j int) bool { return data.Tags[i].Name < data.Tags[j].Name })

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, data); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
