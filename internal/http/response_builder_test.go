package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"carbontrack/internal/middleware/trace"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		BodyHTML("<p>test</p>").
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "<p>test</p>" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "<p>test</p>")
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerMonthChanged("March").
		Trigger(EventThemeChanged, map[string]string{"theme": "light"}).
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}
	for _, part := range []string{`"month-changed"`, `"month":"March"`, `"theme-changed"`, `"theme":"light"`} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %q: %s", part, trigger)
		}
	}
}

func TestHTMXResponseBuilder_NoTriggers(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().Write(w)

	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should not be set without triggers")
	}
}

func TestHTMXResponseBuilder_Navigation(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().
		Redirect("/login").
		PushURL("/?month=May").
		Refresh().
		Write(w)

	if got := w.Header().Get("HX-Redirect"); got != "/login" {
		t.Errorf("HX-Redirect = %q", got)
	}
	if got := w.Header().Get("HX-Push-Url"); got != "/?month=May" {
		t.Errorf("HX-Push-Url = %q", got)
	}
	if got := w.Header().Get("HX-Refresh"); got != "true" {
		t.Errorf("HX-Refresh = %q", got)
	}
}

func TestErrorResponseEscapesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(http.StatusBadRequest, "<script>alert('x')</script>").Write(w)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Errorf("Body not escaped: %s", body)
	}
	if !strings.Contains(body, `class="error"`) {
		t.Errorf("Body missing error class: %s", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name    string
		builder *HTMXResponseBuilder
		want    int
	}{
		{"InternalServerError", InternalServerError(context.Background(), "x"), http.StatusInternalServerError},
		{"ForbiddenError", ForbiddenError("x"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestInternalServerErrorQuotesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), trace.RequestIDKey, "req_abc123")
	w := httptest.NewRecorder()
	InternalServerError(ctx, "render failed").Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "render failed (request req_abc123)") {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestRedirect(t *testing.T) {
	w := httptest.NewRecorder()
	redirect(w, httptest.NewRequest(http.MethodGet, "/", nil), "/login")
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Fatalf("plain redirect: status=%d location=%q", w.Code, w.Header().Get("Location"))
	}

	r := httptest.NewRequest(http.MethodGet, "/ui/kpis", nil)
	r.Header.Set("HX-Request", "true")
	w = httptest.NewRecorder()
	redirect(w, r, "/login")
	if w.Code != http.StatusOK || w.Header().Get("HX-Redirect") != "/login" {
		t.Fatalf("htmx redirect: status=%d hx-redirect=%q", w.Code, w.Header().Get("HX-Redirect"))
	}
	if w.Header().Get("Location") != "" {
		t.Error("htmx redirect must not set Location")
	}
}
