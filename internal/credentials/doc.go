// Package credentials owns the access/refresh token pair used for publish
// calls. The Manager walks a record through its lifecycle states (valid,
// near expiry, expired, refreshing, invalid), replacing it atomically on
// refresh so concurrent readers never observe a half-written record.
package credentials
