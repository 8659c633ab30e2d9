package web

import (
	"io/fs"
	"strings"
	"testing"

	webfs "github.com/ehjjacobson/tiny-tune/web"
)

func loadTemplates(t *testing.T) *Templates {
	t.Helper()
	sub, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		t.Fatalf("sub filesystem: %v", err)
	}
	templates, err := NewTemplates(sub)
	if err != nil {
		t.Fatalf("NewTemplates() error = %v", err)
	}
	return templates
}

func TestTemplatesRenderPages(t *testing.T) {
	templates := loadTemplates(t)

	t.Run("home", func(t *testing.T) {
		var sb strings.Builder
		err := templates.Render(&sb, "home", PageData{Title: "Tiny Tune"})
		if err != nil {
			t.Fatalf("Render(home) error = %v", err)
		}
		if !strings.Contains(sb.String(), "<title>Tiny Tune</title>") {
			t.Error("home page missing title")
		}
	})

	t.Run("widget", func(t *testing.T) {
		var sb strings.Builder
		err := templates.Render(&sb, "widget", WidgetPageData{
			PageData:  PageData{Title: "Tiny Tune"},
			AccountID: "alice",
		})
		if err != nil {
			t.Fatalf("Render(widget) error = %v", err)
		}
		if !strings.Contains(sb.String(), `data-account="alice"`) {
			t.Error("widget page missing account attribute")
		}
	})
}

func TestTemplatesRenderUnknownPage(t *testing.T) {
	templates := loadTemplates(t)

	if err := templates.Render(&strings.Builder{}, "missing", nil); err == nil {
		t.Error("Render(missing) error = nil, want template-not-found error")
	}
}
