// Package policy decides whether an access token's principal may perform an action.
//
// Permissions are strings of the form resource:action or resource:action:scope,
// where scope is own, assigned or own_client. An unscoped grant satisfies every
// scope of the same action; a scoped grant only applies when the caller supplies
// the matching ownership or assignment fact.
//
// A role's permission set comes from a PermissionResolver. The usual composition
// reads the role_permissions table and falls back to DefaultGrants when the table
// has nothing for the role or cannot be read:
//
//	resolver := policy.NewFallbackResolver(
//		policy.NewStoreResolver(db),
//		policy.DefaultResolver(),
//		logger,
//	)
//	engine := policy.NewEngine(codec, resolver)
//
// HasPermission never fails; every problem, including an expired or forged
// token, is a plain false. Require and the Enforce methods return a *DeniedError
// naming the permission in words.
//
// Protected operations take the token explicitly and are wrapped with guards:
//
//	create := policy.RequirePermission(engine, "client:create", createClient)
//	id, err := create(ctx, policy.Token(tok))
package policy
