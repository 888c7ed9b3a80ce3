package incident

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/uptimekit/incident-engine/internal/model"
)

const (
	defaultTitleTemplate       = "{{.MonitorName}} is {{.IncidentType}}"
	defaultDescriptionTemplate = "{{.MonitorName}} was detected {{.IncidentType}} at {{.Time}} on {{.Date}}."

	fallbackTitle = "New incident"
)

// templateInput holds the fields available to project incident templates
type templateInput struct {
	IncidentType string
	ProjectName  string
	MonitorName  string
	Time         string
	Date         string
}

func newTemplateInput(project *model.Project, monitor *model.Monitor, incidentType string, now time.Time) templateInput {
	return templateInput{
		IncidentType: incidentType,
		ProjectName:  project.Name,
		MonitorName:  monitor.Name,
		Time:         now.Format("3:04:05 PM"),
		Date:         now.Format("Jan 2 2006"),
	}
}

// renderTemplates produces the title and description of an automatically
// created incident from the project's configured templates. A render
// failure is surfaced as ErrTemplateRender; a template that renders to an
// empty title falls back to a non-empty default instead.
func renderTemplates(project *model.Project, input templateInput) (string, string, error) {
	titleTpl := project.TitleTemplate
	if titleTpl == "" {
		titleTpl = defaultTitleTemplate
	}
	descTpl := project.DescriptionTemplate
	if descTpl == "" {
		descTpl = defaultDescriptionTemplate
	}

	title, err := render("title", titleTpl, input)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	description, err := render("description", descTpl, input)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	if strings.TrimSpace(title) == "" {
		title = fallbackTitle
	}
	return title, description, nil
}

func render(name, text string, input templateInput) (string, error) {
	tpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tpl.Execute(&b, input); err != nil {
		return "", err
	}
	return b.String(), nil
}
