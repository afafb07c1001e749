// Package permission implements the access-control engine shared by all
// resource domains.
//
// Access is expressed on an ordered scale, none < view < upload < full. A
// grant attaches a level to a principal (a user or a team) on one resource.
// Resolution computes a user's effective level as the maximum of their direct
// grant and the grants of every team they lead; team membership below the
// leader role confers nothing. Admins bypass the store entirely and always
// resolve to full. Each namespace can set a floor level for users with no
// grants at all, which is how the prompt library defaults to view while
// buckets and storage default to none.
//
// One Engine serves one resource namespace. The bucket, storage and prompt
// domains each construct an Engine over their own grant table; the logic is
// identical, only the Config differs.
//
// Mutations go through SetPermission: input validation, grant-target
// eligibility (only leaders may receive user grants), a single-statement
// upsert riding the table's uniqueness constraint, then a best-effort audit
// record and cache invalidation.
package permission
