package http

import (
	"net/http"

	"ledgerdash/internal/core"
	applog "ledgerdash/internal/log"
)

// handleCartAdd forwards a cart item to the backend. The backend's 201 is the
// only success; anything else surfaces as an error.
func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var item core.CartItem
	if err := DecodeJSON(r, &item); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Client.AddToCart(r.Context(), sessionFrom(r.Context()), item); err != nil {
		s.writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Cart item added",
		applog.FieldOperation, applog.OpCartAdd,
		"product", item.Product,
		"quantity", item.Quantity)
	NewJSONResponse().Status(http.StatusCreated).JSON(map[string]any{
		"status":   "added",
		"product":  item.Product,
		"quantity": item.Quantity,
	}).Write(w)
}
