// Package directory holds the user and team directory backing authentication
// and permission resolution.
//
// Users carry a global role (admin, leader, user). Teams have per-membership
// roles (member, leader); only leader memberships feed permission inheritance,
// which is why LeaderTeamIDs and MemberTeamIDs are separate projections.
// User loads sit on the resolution hot path and are served through a small
// expiring LRU cache.
package directory
