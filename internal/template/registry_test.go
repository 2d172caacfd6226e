package template

import (
	"errors"
	"strings"
	"testing"
)

func TestRender_Welcome(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	data := map[string]interface{}{"Username": "sam", "AppName": "Chirper"}
	subject, html, err := r.Render("welcome", data, "https://app.example.com/track/tok-1")
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.Contains(subject, "sam") || !strings.Contains(subject, "Chirper") {
		t.Errorf("subject not rendered with data: %q", subject)
	}
	if !strings.Contains(html, "Welcome, sam!") {
		t.Errorf("body not rendered with data: %q", html)
	}
	if !strings.Contains(html, `src="https://app.example.com/track/tok-1"`) {
		t.Error("body missing tracking pixel URL")
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if _, _, err := r.Render("missing", nil, ""); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestRender_EscapesData(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	data := map[string]interface{}{
		"Username":      "sam",
		"CommenterName": "eve",
		"Comment":       `<script>alert("x")</script>`,
		"PostURL":       "https://app.example.com/p/1",
	}
	_, html, err := r.Render("comment_notification", data, "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if strings.Contains(html, "<script>") {
		t.Error("user content must be HTML-escaped")
	}
}

func TestRender_NoTrackingURL(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	_, html, err := r.Render("notification", map[string]interface{}{
		"Subject": "hi", "Message": "hello",
	}, "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<img") {
		t.Error("no pixel should be emitted without a tracking URL")
	}
}

func TestRegister_Custom(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if err := r.Register("digest", "Your weekly digest", "<p>{{.Data.Count}} new posts</p>"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Has("digest") {
		t.Fatal("registered template not found")
	}

	subject, html, err := r.Render("digest", map[string]interface{}{"Count": 7}, "http://x/track/t")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Your weekly digest" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(html, "7 new posts") || !strings.Contains(html, "http://x/track/t") {
		t.Errorf("unexpected body %q", html)
	}
}
