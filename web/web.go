// Package web embeds the static pages served by the relay.
package web

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var files embed.FS

var uploadedPage = template.Must(template.ParseFS(files, "templates/uploaded.html"))

// UploadForm returns the upload form page.
func UploadForm() []byte {
	b, err := files.ReadFile("templates/upload.html")
	if err != nil {
		panic(err)
	}
	return b
}

// RenderUploaded writes the confirmation page for fileURL. The URL is escaped
// for both the attribute and the text.
func RenderUploaded(w io.Writer, fileURL string) error {
	return uploadedPage.Execute(w, struct{ FileURL string }{FileURL: fileURL})
}
