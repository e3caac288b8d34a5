// Package middleware groups the Fiber middleware of the status API.
//
//   - auth checks the X-API-Key header against the configured key.
//   - rayid assigns every request an id and echoes it in the X-Ray-ID header.
package middleware
