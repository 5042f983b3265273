// Package permission resolves role permissions and makes authorization
// decisions.
//
// Roles are flat: a role's permissions are the union of the rows linking it
// to capabilities, with no inheritance. A role with no rows can do nothing.
// Authorize combines the capability check with tenant isolation so an
// employee of one company can never act on another company's resources.
//
// Resolver caching is opt-in and must be invalidated when links change.
package permission
