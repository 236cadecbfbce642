// Package middleware groups the Fiber middleware of the service.
//
//   - auth: API key check on every request, with skippable paths.
//   - rayid: assigns each request a RayID, exposed in the X-Ray-ID header
//     and in the ray_id local used by logger.WithRayID.
package middleware
