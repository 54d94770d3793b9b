package jobs

import (
	"fmt"
	"html"
	"strings"

	"jobboard/internal/model"
)

// announcement 为新职位广播内容。
type announcement struct {
	subject string
	text    string
	html    string
}

func buildAnnouncement(job model.Job) announcement {
	deadline := orDefault(job.ApplicationDeadline, "Not specified")
	var a announcement
	var b strings.Builder

	switch job.Origin {
	case model.OriginGovernment:
		dept := orDefault(job.DepartmentName, "")
		a.subject = fmt.Sprintf("New Government Job Posted: %s", job.Title)
		a.text = fmt.Sprintf("A new government job in %s titled %q is now open at %s.", dept, job.Title, job.Location)
		b.WriteString("<h2>New Government Job Alert</h2>")
		writeRow(&b, "Job Title", job.Title)
		writeRow(&b, "Department", dept)
		writeRow(&b, "Location", job.Location)
		writeRow(&b, "Employment Type", job.EmploymentType)
		writeRow(&b, "Deadline", deadline)
		b.WriteString("<p>Visit the portal to apply now.</p>")
	default:
		by := "a company"
		a.subject = fmt.Sprintf("New Job Posted: %s", job.Title)
		if job.Origin == model.OriginAdmin {
			by = "the admin"
			a.subject = fmt.Sprintf("New Job Posted by Admin: %s", job.Title)
		}
		a.text = fmt.Sprintf("A new job titled %q has been posted by %s at %s.", job.Title, orDefault(job.CompanyName, by), job.Location)
		b.WriteString("<h2>New Job Alert</h2>")
		writeRow(&b, "Job Title", job.Title)
		writeRow(&b, "Company", orDefault(job.CompanyName, "Not specified"))
		writeRow(&b, "Location", job.Location)
		writeRow(&b, "Employment Type", job.EmploymentType)
		writeRow(&b, "Deadline", deadline)
		b.WriteString("<p>Log in now to apply!</p>")
	}

	a.html = b.String()
	return a
}

func writeRow(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "<p><b>%s:</b> %s</p>", label, html.EscapeString(value))
}

func orDefault(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}
