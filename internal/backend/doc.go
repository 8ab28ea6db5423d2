// Package backend is the boundary to the order/cart/payment REST API. The
// bridge treats it as opaque: it resolves platform users to business
// accounts, posts best-effort support notifications, and fetches menu and
// order data for the bots' ordinary commands. Authentication is a bearer
// token attached as-is; validation is the backend's job.
package backend
