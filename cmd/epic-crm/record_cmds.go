// ABOUTME: Client, contract and event commands guarded by the policy engine
// ABOUTME: Ownership and assignment facts come from the stored record before any change is applied

package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/epicevents/crm/internal/auth"
	"github.com/epicevents/crm/internal/policy"
	"github.com/epicevents/crm/internal/store"
)

func splitSubcommand(args []string, def string) (string, []string) {
	if len(args) == 0 {
		return def, nil
	}
	return args[0], args[1:]
}

// --- clients ---

func (a *app) cmdClient(ctx context.Context, args []string) error {
	subcmd, args := splitSubcommand(args, "list")
	switch subcmd {
	case "list", "ls":
		return a.cmdClientList(ctx)
	case "create", "add":
		return a.cmdClientCreate(ctx, args)
	case "update", "edit":
		return a.cmdClientUpdate(ctx, args)
	default:
		return fmt.Errorf("unknown client subcommand: %s (use list, create, update)", subcmd)
	}
}

func (a *app) cmdClientCreate(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, fieldNames(clientFields))
	if err != nil {
		return err
	}

	create := policy.RequirePermission(a.engine, "client:create", func(ctx context.Context, _ policy.Token) (*store.Client, error) {
		c := &store.Client{CommercialID: auth.MustClaimsFromContext(ctx).SubjectID}
		if _, err := fillFields(c, clientFields, parsed, a.prompt); err != nil {
			return nil, err
		}
		if err := a.db.CreateClient(ctx, c); err != nil {
			return nil, err
		}
		a.record(ctx, store.AuditCreateClient, store.TargetClient, c.ID, nil)
		return c, nil
	})

	c, err := guarded(ctx, a, create)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Created client %s (id %d)\n", c.FullName, c.ID)
	return nil
}

func (a *app) cmdClientUpdate(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, fieldNames(clientFields))
	if err != nil {
		return err
	}
	id, err := parsed.id(0, "client")
	if err != nil {
		return err
	}

	update := policy.LoginRequired(a.engine, func(ctx context.Context, tok policy.Token) ([]string, error) {
		c, _, err := a.records.Client(ctx, tok, policy.ActionUpdate, id)
		if err != nil {
			return nil, err
		}
		changed, err := fillFields(c, clientFields, parsed, nil)
		if err != nil {
			return nil, err
		}
		if len(changed) == 0 {
			return nil, fmt.Errorf("nothing to update (use --%s)", strings.Join(fieldNames(clientFields), ", --"))
		}
		if err := a.db.UpdateClient(ctx, c); err != nil {
			return nil, err
		}
		a.record(ctx, store.AuditUpdateClient, store.TargetClient, c.ID, map[string]any{"fields": changed})
		return changed, nil
	})

	changed, err := guarded(ctx, a, update)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Updated client %d: %s\n", id, strings.Join(changed, ", "))
	return nil
}

func (a *app) cmdClientList(ctx context.Context) error {
	list := policy.RequirePermission(a.engine, "client:read", func(ctx context.Context, _ policy.Token) ([]*store.Client, error) {
		return a.db.ListClients(ctx)
	})

	clients, err := guarded(ctx, a, list)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Clients")
	cyan.Fprintln(a.out, "  -------")

	if len(clients) == 0 {
		fmt.Fprintln(a.out, "  (no clients)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tEMAIL\tCOMPANY\tCOMMERCIAL")
	fmt.Fprintln(w, "  --\t----\t-----\t-------\t----------")
	for _, c := range clients {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%d\n", c.ID, truncate(c.FullName, 24), c.Email, truncate(c.Company, 20), c.CommercialID)
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}

// --- contracts ---

func (a *app) cmdContract(ctx context.Context, args []string) error {
	subcmd, args := splitSubcommand(args, "")
	switch subcmd {
	case "create", "add":
		return a.cmdContractCreate(ctx, args)
	case "update", "edit":
		return a.cmdContractUpdate(ctx, args)
	default:
		return fmt.Errorf("usage: contract create|update")
	}
}

func (a *app) cmdContractCreate(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, fieldNames(contractFields))
	if err != nil {
		return err
	}

	create := policy.RequirePermission(a.engine, "contract:create", func(ctx context.Context, _ policy.Token) (*store.Contract, error) {
		c := &store.Contract{}
		changed, err := fillFields(c, contractFields, parsed, a.prompt)
		if err != nil {
			return nil, err
		}
		client, err := a.db.GetClient(ctx, c.ClientID)
		if err != nil {
			return nil, fmt.Errorf("client %d: %w", c.ClientID, err)
		}
		c.CommercialID = client.CommercialID
		if !slices.Contains(changed, "due") {
			c.DueCents = c.AmountCents
		}
		if c.DueCents > c.AmountCents {
			return nil, fmt.Errorf("amount due exceeds the contract total")
		}
		if err := a.db.CreateContract(ctx, c); err != nil {
			return nil, err
		}
		a.record(ctx, store.AuditCreateContract, store.TargetContract, c.ID, map[string]any{"client_id": c.ClientID})
		return c, nil
	})

	c, err := guarded(ctx, a, create)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Created contract %d for client %d (%s)\n", c.ID, c.ClientID, formatCents(c.AmountCents))
	return nil
}

func (a *app) cmdContractUpdate(ctx context.Context, args []string) error {
	// client-id is fixed once a contract exists
	editable := contractFields[1:]
	parsed, err := parseArgs(args, fieldNames(editable))
	if err != nil {
		return err
	}
	id, err := parsed.id(0, "contract")
	if err != nil {
		return err
	}

	update := policy.LoginRequired(a.engine, func(ctx context.Context, tok policy.Token) ([]string, error) {
		c, _, err := a.records.Contract(ctx, tok, policy.ActionUpdate, id)
		if err != nil {
			return nil, err
		}
		changed, err := fillFields(c, editable, parsed, nil)
		if err != nil {
			return nil, err
		}
		if len(changed) == 0 {
			return nil, fmt.Errorf("nothing to update (use --%s)", strings.Join(fieldNames(editable), ", --"))
		}
		if c.DueCents > c.AmountCents {
			return nil, fmt.Errorf("amount due exceeds the contract total")
		}
		if err := a.db.UpdateContract(ctx, c); err != nil {
			return nil, err
		}
		a.record(ctx, store.AuditUpdateContract, store.TargetContract, c.ID, map[string]any{"fields": changed})
		return changed, nil
	})

	changed, err := guarded(ctx, a, update)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Updated contract %d: %s\n", id, strings.Join(changed, ", "))
	return nil
}

// --- events ---

func (a *app) cmdEvent(ctx context.Context, args []string) error {
	subcmd, args := splitSubcommand(args, "")
	switch subcmd {
	case "create", "add":
		return a.cmdEventCreate(ctx, args)
	case "update", "edit":
		return a.cmdEventUpdate(ctx, args)
	default:
		return fmt.Errorf("usage: event create --contract-id ID | event update ID")
	}
}

func (a *app) cmdEventCreate(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, append(fieldNames(eventFields), "contract-id"))
	if err != nil {
		return err
	}
	rawContract, ok := parsed.get("contract-id")
	if !ok {
		rawContract = a.prompt.ask("Contract id", "")
	}
	contractID, err := parseID(rawContract)
	if err != nil {
		return fmt.Errorf("contract-id: %w", err)
	}

	create := policy.LoginRequired(a.engine, func(ctx context.Context, tok policy.Token) (*store.Event, error) {
		contract, _, err := a.records.ContractForEvent(ctx, tok, contractID)
		if err != nil {
			return nil, err
		}

		e := &store.Event{ContractID: contract.ID}
		if _, err := fillFields(e, eventFields, parsed, a.prompt); err != nil {
			return nil, err
		}
		if e.StartsAt != nil && e.EndsAt != nil && e.EndsAt.Before(*e.StartsAt) {
			return nil, fmt.Errorf("event ends before it starts")
		}
		if err := a.db.CreateEvent(ctx, e); err != nil {
			return nil, err
		}
		a.record(ctx, store.AuditCreateEvent, store.TargetEvent, e.ID, map[string]any{"contract_id": e.ContractID})
		return e, nil
	})

	e, err := guarded(ctx, a, create)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Created event %s (id %d) for contract %d\n", e.Name, e.ID, e.ContractID)
	return nil
}

func (a *app) cmdEventUpdate(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, append(fieldNames(eventFields), "support-id"), "unassign")
	if err != nil {
		return err
	}
	id, err := parsed.id(0, "event")
	if err != nil {
		return err
	}

	update := policy.LoginRequired(a.engine, func(ctx context.Context, tok policy.Token) ([]string, error) {
		e, _, err := a.records.Event(ctx, tok, policy.ActionUpdate, id)
		if err != nil {
			return nil, err
		}

		changed, err := fillFields(e, eventFields, parsed, nil)
		if err != nil {
			return nil, err
		}

		// Reassigning support is reserved for holders of the unscoped grant.
		rawSupport, reassign := parsed.get("support-id")
		if reassign || parsed.bool("unassign") {
			if _, err := a.engine.Require(ctx, tok, "event:update"); err != nil {
				return nil, err
			}
			if parsed.bool("unassign") {
				e.SupportID = nil
			} else {
				supportID, err := a.supportPrincipal(ctx, rawSupport)
				if err != nil {
					return nil, err
				}
				e.SupportID = &supportID
			}
			changed = append(changed, "support-id")
		}

		if len(changed) == 0 {
			return nil, fmt.Errorf("nothing to update (use --%s, --support-id)", strings.Join(fieldNames(eventFields), ", --"))
		}
		if e.StartsAt != nil && e.EndsAt != nil && e.EndsAt.Before(*e.StartsAt) {
			return nil, fmt.Errorf("event ends before it starts")
		}
		if err := a.db.UpdateEvent(ctx, e); err != nil {
			return nil, err
		}
		a.record(ctx, store.AuditUpdateEvent, store.TargetEvent, e.ID, map[string]any{"fields": changed})
		return changed, nil
	})

	changed, err := guarded(ctx, a, update)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Updated event %d: %s\n", id, strings.Join(changed, ", "))
	return nil
}

// supportPrincipal resolves raw to a principal id holding the support role.
func (a *app) supportPrincipal(ctx context.Context, raw string) (int64, error) {
	id, err := parseID(raw)
	if err != nil {
		return 0, fmt.Errorf("support-id: %w", err)
	}
	p, err := a.db.GetPrincipal(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("support-id %d: %w", id, err)
	}
	if p.Role != store.RoleSupport {
		return 0, fmt.Errorf("support-id %d is a %s account, not support", id, p.Role)
	}
	return id, nil
}
