// ABOUTME: Scoped checks that read ownership and assignment facts from the system of record
// ABOUTME: Callers pass a record id; the owner or assignee always comes from the stored row

package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/epicevents/crm/internal/auth"
	"github.com/epicevents/crm/internal/store"
)

// ErrContractNotSigned is returned when an event is requested for an unsigned contract.
var ErrContractNotSigned = errors.New("contract is not signed")

// Records binds an Engine to a RecordStore.
type Records struct {
	engine *Engine
	store  store.RecordStore
}

// NewRecords returns scoped checks for e backed by s.
func NewRecords(e *Engine, s store.RecordStore) *Records {
	return &Records{engine: e, store: s}
}

// Client loads client id and allows action if the caller holds client:<action>
// or client:<action>:own and is the client's commercial.
func (r *Records) Client(ctx context.Context, tok Token, action string, id int64) (*store.Client, *auth.Claims, error) {
	c, err := r.store.GetClient(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("client %d: %w", id, err)
	}
	claims, err := r.engine.EnforceAnyOrOwn(ctx, tok, ResourceClient, action, c.CommercialID)
	if err != nil {
		return nil, nil, err
	}
	return c, claims, nil
}

// Contract loads contract id and allows action for the unscoped grant or the
// owning commercial holding contract:<action>:own.
func (r *Records) Contract(ctx context.Context, tok Token, action string, id int64) (*store.Contract, *auth.Claims, error) {
	c, err := r.store.GetContract(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("contract %d: %w", id, err)
	}
	claims, err := r.engine.EnforceAnyOrOwn(ctx, tok, ResourceContract, action, c.CommercialID)
	if err != nil {
		return nil, nil, err
	}
	return c, claims, nil
}

// Event loads event id and allows action for the unscoped grant or the
// assigned support principal holding event:<action>:assigned.
func (r *Records) Event(ctx context.Context, tok Token, action string, id int64) (*store.Event, *auth.Claims, error) {
	e, err := r.store.GetEvent(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("event %d: %w", id, err)
	}
	var assigned int64
	if e.SupportID != nil {
		assigned = *e.SupportID
	}
	claims, err := r.engine.EnforceAnyOrAssigned(ctx, tok, ResourceEvent, action, assigned)
	if err != nil {
		return nil, nil, err
	}
	return e, claims, nil
}

// ContractForEvent loads the contract an event would be created for. The caller
// needs event:create, or event:create:own_client on their own client's contract,
// and the contract must be signed.
func (r *Records) ContractForEvent(ctx context.Context, tok Token, contractID int64) (*store.Contract, *auth.Claims, error) {
	c, err := r.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, nil, fmt.Errorf("contract %d: %w", contractID, err)
	}
	claims, err := r.engine.CanCreateEventForContract(ctx, tok, c.CommercialID)
	if err != nil {
		return nil, nil, err
	}
	if !c.Signed {
		return nil, nil, fmt.Errorf("contract %d: %w", c.ID, ErrContractNotSigned)
	}
	return c, claims, nil
}
