// Package digest turns generated queries into per-company email drafts.
//
// A template's subject and body use the same {{placeholder}} syntax as rule query
// templates. The built-in placeholders are:
//
//	company_name     the company's display name
//	queries_list     numbered list of the company's query texts
//	query_count      number of queries in the draft
//	due_date         response deadline, formatted 2006-01-02
//
// outstanding_queries and critical_queries are aliases of queries_list, and
// final_deadline is an alias of due_date. Company.Vars supplies anything else
// (for example previous_email_date). An unresolved placeholder fails the draft.
package digest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/prcycle/querytemplate"
	"github.com/liamcoop/prcycle/rules"
	"github.com/liamcoop/prcycle/schema"
)

// DueDateLayout formats due_date and final_deadline.
const DueDateLayout = "2006-01-02"

// ErrNoQueries is returned by Compose when the company has no queries.
var ErrNoQueries = errors.New("no queries for company")

// Company is the recipient of a draft.
type Company struct {
	ID    string            `json:"id" yaml:"id"`
	Name  string            `json:"name" yaml:"name"`
	Email string            `json:"email" yaml:"email"`
	Vars  map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// EmailTemplate is a reusable subject and body.
type EmailTemplate struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Subject string   `json:"subject" yaml:"subject"`
	Body    string   `json:"body" yaml:"body"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Draft is a rendered email ready for review. Sending is out of scope.
type Draft struct {
	TemplateID string   `json:"templateId"`
	CompanyID  string   `json:"companyId"`
	To         string   `json:"to"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	QueryIDs   []string `json:"queryIds"`
}

// Compose renders tpl for company using the queries generated for it.
// Queries for other companies are ignored.
func Compose(tpl EmailTemplate, company Company, queries []rules.GeneratedQuery, due time.Time) (Draft, error) {
	var own []rules.GeneratedQuery
	for _, q := range queries {
		if q.RecordID == company.ID {
			own = append(own, q)
		}
	}
	if len(own) == 0 {
		return Draft{}, fmt.Errorf("company %s: %w", company.ID, ErrNoQueries)
	}

	vars := variables(company, own, due)

	subject, err := querytemplate.Render(tpl.Subject, vars)
	if err != nil {
		return Draft{}, fmt.Errorf("template %s subject: %w", tpl.ID, err)
	}
	body, err := querytemplate.Render(tpl.Body, vars)
	if err != nil {
		return Draft{}, fmt.Errorf("template %s body: %w", tpl.ID, err)
	}

	ids := make([]string, len(own))
	for i, q := range own {
		ids[i] = q.ID
	}

	return Draft{
		TemplateID: tpl.ID,
		CompanyID:  company.ID,
		To:         company.Email,
		Subject:    subject,
		Body:       body,
		QueryIDs:   ids,
	}, nil
}

// ComposeAll drafts one email per company that has queries, in companies order.
// Companies without queries are skipped. Render failures are joined into the
// returned error; the remaining drafts are still returned.
func ComposeAll(tpl EmailTemplate, companies []Company, queries []rules.GeneratedQuery, due time.Time) ([]Draft, error) {
	byCompany := make(map[string][]rules.GeneratedQuery)
	for _, q := range queries {
		byCompany[q.RecordID] = append(byCompany[q.RecordID], q)
	}

	var drafts []Draft
	var errs []error
	for _, c := range companies {
		own := byCompany[c.ID]
		if len(own) == 0 {
			continue
		}
		d, err := Compose(tpl, c, own, due)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, errors.Join(errs...)
}

func variables(company Company, queries []rules.GeneratedQuery, due time.Time) map[string]schema.Value {
	vars := make(map[string]schema.Value, len(company.Vars)+8)
	for k, v := range company.Vars {
		vars[k] = schema.String(v)
	}

	list := schema.String(numbered(queries))
	dueDate := schema.String(due.Format(DueDateLayout))

	vars["company_name"] = schema.String(company.Name)
	vars["queries_list"] = list
	vars["outstanding_queries"] = list
	vars["critical_queries"] = list
	vars["query_count"] = schema.String(strconv.Itoa(len(queries)))
	vars["due_date"] = dueDate
	vars["final_deadline"] = dueDate
	return vars
}

func numbered(queries []rules.GeneratedQuery) string {
	var b strings.Builder
	for i, q := range queries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, q.RenderedText)
	}
	return b.String()
}
