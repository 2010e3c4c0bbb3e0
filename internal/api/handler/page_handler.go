package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sirpyerre/tenant-portal/internal/api/middleware"
	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// PageHandler renders the server-side pages. Route guards decide who gets here.
type PageHandler struct{}

func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

type pageData struct {
	Title    string
	Session  *ports.Session
	CanAdmin bool
}

// Login renders the sign-in form, or sends signed-in users to the dashboard.
func (h *PageHandler) Login(c echo.Context) error {
	if middleware.CurrentSession(c) != nil {
		return c.Redirect(http.StatusSeeOther, "/dashboard")
	}
	return render(c, "login.html", pageData{Title: "Sign in"})
}

func (h *PageHandler) Dashboard(c echo.Context) error {
	sess := middleware.CurrentSession(c)
	return render(c, "dashboard.html", pageData{
		Title:    "Dashboard",
		Session:  sess,
		CanAdmin: sess.HasRole(domain.RoleOwner, domain.RoleAdmin),
	})
}

func (h *PageHandler) Admin(c echo.Context) error {
	return render(c, "admin.html", pageData{Title: "Admin", Session: middleware.CurrentSession(c)})
}

func render(c echo.Context, name string, data pageData) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return domain.Internal("render "+name, err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
