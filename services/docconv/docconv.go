// Package docconvsvc renders lesson documents to HTML fragments.
package docconvsvc

import (
	"context"
	"html/template"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/curriculum"
)

var pdfTmpl = template.Must(template.New("pdf").Parse(
	`<div class="lesson-document">` +
		`<object data="{{.URL}}" type="application/pdf" width="100%" height="800">` +
		`<p><a href="{{.URL}}" download>{{.Name}}</a></p>` +
		`</object>` +
		`</div>`,
))

// Converter embeds PDF documents served from the media storage.
type Converter struct {
	mediaBaseURL string
}

var _ curriculum.DocumentConverter = (*Converter)(nil)

func New(mediaBaseURL string) *Converter {
	return &Converter{mediaBaseURL: mediaBaseURL}
}

func (c *Converter) ConvertToHTML(ctx context.Context, document string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !strings.HasSuffix(strings.ToLower(document), ".pdf") {
		return "", errors.Errorf("unsupported document %q", document)
	}

	var b strings.Builder
	err := pdfTmpl.Execute(&b, struct{ URL, Name string }{
		URL:  core.MediaURL(c.mediaBaseURL, document),
		Name: path.Base(document),
	})
	if err != nil {
		return "", errors.Wrap(err, "rendering document")
	}
	return b.String(), nil
}
