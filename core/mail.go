package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	"os"
	"path/filepath"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var (
	tmplCache = struct {
		sync.RWMutex
		text map[string]*texttmpl.Template
		html map[string]*htmltmpl.Template
	}{
		text: make(map[string]*texttmpl.Template),
		html: make(map[string]*htmltmpl.Template),
	}

	tmplDir = filepath.Join(Getwd(), "templates", "email")
)

type (
	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

type emailContextData struct {
	FrontendBaseURL string
	SchoolName      string
	Data            interface{}
}

func (m *EmailMessage) contextData() emailContextData {
	return emailContextData{
		FrontendBaseURL: Conf.FrontendBaseURL,
		SchoolName:      Conf.SchoolName,
		Data:            m.TemplateData,
	}
}

// Render resolves the message's template (if any) into TextContent/HTMLContent.
// Both the .txt and .html variants are optional; a missing file is skipped.
func (m *EmailMessage) Render() error {
	if m.TemplateName == "" {
		return nil
	}

	if tmpl, err := textTemplate(m.TemplateName); err == nil {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, m.contextData()); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buf.String()
	} else if !os.IsNotExist(errors.Cause(err)) {
		return err
	}

	if tmpl, err := htmlTemplate(m.TemplateName); err == nil {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, m.contextData()); err != nil {
			return errors.Wrapf(err, "rendering %s.html", m.TemplateName)
		}
		m.HTMLContent = buf.String()
	} else if !os.IsNotExist(errors.Cause(err)) {
		return err
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool {
	return len(m.To) > 0
}

func (m *EmailMessage) HasContent() bool {
	return m.BodyStr != "" || m.TextContent != "" || m.HTMLContent != ""
}

func textTemplate(name string) (*texttmpl.Template, error) {
	tmplCache.RLock()
	tmpl, ok := tmplCache.text[name]
	tmplCache.RUnlock()
	if ok {
		return tmpl, nil
	}

	path := filepath.Join(tmplDir, name+".txt")
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "loading email template")
	}
	tmpl, err := texttmpl.ParseFiles(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	tmplCache.Lock()
	tmplCache.text[name] = tmpl
	tmplCache.Unlock()
	return tmpl, nil
}

func htmlTemplate(name string) (*htmltmpl.Template, error) {
	tmplCache.RLock()
	tmpl, ok := tmplCache.html[name]
	tmplCache.RUnlock()
	if ok {
		return tmpl, nil
	}

	path := filepath.Join(tmplDir, name+".html")
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "loading email template")
	}
	tmpl, err := htmltmpl.ParseFiles(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	tmplCache.Lock()
	tmplCache.html[name] = tmpl
	tmplCache.Unlock()
	return tmpl, nil
}
