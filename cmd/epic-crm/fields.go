// ABOUTME: Field tables driving record prompts: name, prompt, validation rule and setter
// ABOUTME: One table per record type serves both interactive create and flag-driven update

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/epicevents/crm/internal/store"
)

const dateTimeLayout = "2006-01-02 15:04"

var validate = validator.New(validator.WithRequiredStructEnabled())

// field describes one user-editable attribute of T.
type field[T any] struct {
	name   string // flag name
	prompt string
	rule   string // validator tag applied to the raw input
	set    func(*T, string) error
}

func (f field[T]) apply(target *T, raw string) error {
	raw = strings.TrimSpace(raw)
	if err := validate.Var(raw, f.rule); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: %q fails %q", f.name, raw, verrs[0].ActualTag())
		}
		return fmt.Errorf("%s: %w", f.name, err)
	}
	if raw == "" {
		return nil
	}
	if err := f.set(target, raw); err != nil {
		return fmt.Errorf("%s: %w", f.name, err)
	}
	return nil
}

// fillFields applies flag values and, when p is non-nil, prompts for every field
// without one. Returns the names of the fields that were set.
func fillFields[T any](target *T, fields []field[T], args *parsedArgs, p *prompter) ([]string, error) {
	var changed []string
	for _, f := range fields {
		raw, ok := args.get(f.name)
		if !ok {
			if p == nil {
				continue
			}
			raw = p.ask(f.prompt, "")
		}
		if err := f.apply(target, raw); err != nil {
			return nil, err
		}
		if strings.TrimSpace(raw) != "" {
			changed = append(changed, f.name)
		}
	}
	return changed, nil
}

func fieldNames[T any](fields []field[T]) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

var principalFields = []field[store.Principal]{
	{name: "email", prompt: "Email", rule: "required,email,max=254", set: func(p *store.Principal, v string) error {
		p.Email = v
		return nil
	}},
	{name: "name", prompt: "Full name", rule: "required,max=100", set: func(p *store.Principal, v string) error {
		p.FullName = v
		return nil
	}},
	{name: "role", prompt: "Role (management/commercial/support)", rule: "required", set: func(p *store.Principal, v string) error {
		role, err := store.ParseRole(v)
		if err != nil {
			return err
		}
		p.Role = role
		return nil
	}},
}

var clientFields = []field[store.Client]{
	{name: "name", prompt: "Full name", rule: "required,max=100", set: func(c *store.Client, v string) error {
		c.FullName = v
		return nil
	}},
	{name: "email", prompt: "Email", rule: "required,email,max=254", set: func(c *store.Client, v string) error {
		c.Email = v
		return nil
	}},
	{name: "phone", prompt: "Phone", rule: "omitempty,max=20", set: func(c *store.Client, v string) error {
		c.Phone = v
		return nil
	}},
	{name: "company", prompt: "Company", rule: "omitempty,max=100", set: func(c *store.Client, v string) error {
		c.Company = v
		return nil
	}},
}

var contractFields = []field[store.Contract]{
	{name: "client-id", prompt: "Client id", rule: "required,number", set: func(c *store.Contract, v string) error {
		id, err := parseID(v)
		c.ClientID = id
		return err
	}},
	{name: "amount", prompt: "Total amount", rule: "required,numeric", set: func(c *store.Contract, v string) error {
		cents, err := parseCents(v)
		c.AmountCents = cents
		return err
	}},
	{name: "due", prompt: "Amount due", rule: "omitempty,numeric", set: func(c *store.Contract, v string) error {
		cents, err := parseCents(v)
		c.DueCents = cents
		return err
	}},
	{name: "signed", prompt: "Signed (yes/no)", rule: "omitempty,oneof=yes no y n true false", set: func(c *store.Contract, v string) error {
		c.Signed = parseYes(v)
		return nil
	}},
}

var eventFields = []field[store.Event]{
	{name: "name", prompt: "Event name", rule: "required,max=100", set: func(e *store.Event, v string) error {
		e.Name = v
		return nil
	}},
	{name: "location", prompt: "Location", rule: "omitempty,max=200", set: func(e *store.Event, v string) error {
		e.Location = v
		return nil
	}},
	{name: "attendees", prompt: "Attendees", rule: "omitempty,number", set: func(e *store.Event, v string) error {
		n, err := strconv.Atoi(v)
		e.Attendees = n
		return err
	}},
	{name: "starts", prompt: "Starts (YYYY-MM-DD HH:MM)", rule: "omitempty,datetime=2006-01-02 15:04", set: func(e *store.Event, v string) error {
		t, err := time.ParseInLocation(dateTimeLayout, v, time.Local)
		e.StartsAt = &t
		return err
	}},
	{name: "ends", prompt: "Ends (YYYY-MM-DD HH:MM)", rule: "omitempty,datetime=2006-01-02 15:04", set: func(e *store.Event, v string) error {
		t, err := time.ParseInLocation(dateTimeLayout, v, time.Local)
		e.EndsAt = &t
		return err
	}},
	{name: "notes", prompt: "Notes", rule: "omitempty,max=2000", set: func(e *store.Event, v string) error {
		e.Notes = v
		return nil
	}},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseCents reads a decimal amount with at most two fractional digits.
func parseCents(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return units*100 + cents, nil
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}

func parseYes(s string) bool {
	switch strings.ToLower(s) {
	case "yes", "y", "true":
		return true
	}
	return false
}
