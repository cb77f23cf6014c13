// Package models contains the GORM persistence models of the refund tables.
// Domain entities carry no ORM tags; each model converts to and from its
// entity with ToDomain and a *FromDomain constructor.
//
// Tables:
//   - orders: order header and the refund account snapshot (order.go)
//   - refund_details: refund details with their return and evidence payloads (refund_detail.go)
//   - refund_return_index: return tracking ids for cross-detail lookups (refund_detail.go)
//   - refund_reconciliations: the append-only reconciliation ledger (refund_detail.go)
package models
