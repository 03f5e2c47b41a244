package main

import (
	"github.com/liamcoop/prcycle/digest"
	"github.com/liamcoop/prcycle/rules"
	"github.com/liamcoop/prcycle/schema"
)

// API request and response models

// RuleRequest is the body of create, update, validate and test requests.
// Active defaults to true and AppliesTo to "all" when omitted.
type RuleRequest struct {
	ID            string       `json:"id,omitempty"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Condition     string       `json:"condition"`
	QueryTemplate string       `json:"queryTemplate"`
	Active        *bool        `json:"active,omitempty"`
	AppliesTo     *rules.Scope `json:"appliesTo,omitempty"`
}

func (req RuleRequest) toRule() *rules.Rule {
	rule := &rules.Rule{
		ID:            req.ID,
		Name:          req.Name,
		Description:   req.Description,
		Condition:     req.Condition,
		QueryTemplate: req.QueryTemplate,
		Active:        true,
		AppliesTo:     rules.AllCompanies(),
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if req.AppliesTo != nil {
		rule.AppliesTo = *req.AppliesTo
	}
	return rule
}

// ValidateResponse reports the outcome of POST /rules/validate.
type ValidateResponse struct {
	Valid        bool     `json:"valid"`
	Error        string   `json:"error,omitempty"`
	Field        string   `json:"field,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// TestRuleRequest previews a rule. Records default to the configured source.
type TestRuleRequest struct {
	Rule    RuleRequest     `json:"rule"`
	Records []schema.Record `json:"records,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// FireRequest optionally carries the records to fire over.
type FireRequest struct {
	Records []schema.Record `json:"records,omitempty"`
}

// FireAllResponse is the response of POST /fire.
type FireAllResponse struct {
	Results []*rules.FireResult `json:"results"`
	Queries int                 `json:"queries"`
}

// DigestRequest selects the template and deadline for email drafts.
// DueDate uses 2006-01-02 and defaults to two weeks from today.
type DigestRequest struct {
	TemplateID string `json:"templateId"`
	DueDate    string `json:"dueDate,omitempty"`
}

// DigestResponse holds composed drafts and per-company failures.
type DigestResponse struct {
	Drafts []digest.Draft `json:"drafts"`
	Errors []string       `json:"errors,omitempty"`
}

// SchemaResponse describes the effective schema.
type SchemaResponse struct {
	Fields  map[string]schema.Kind `json:"fields"`
	Derived []schema.DerivedField  `json:"derived,omitempty"`
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	RulesLoaded int    `json:"rulesLoaded"`
	Companies   int    `json:"companies"`
}
