package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-cart/internal/common"
	"github.com/noah-isme/storefront-cart/internal/coupon"
	"github.com/noah-isme/storefront-cart/internal/events"
	"github.com/noah-isme/storefront-cart/internal/history"
	"github.com/noah-isme/storefront-cart/internal/pricing"
	"github.com/noah-isme/storefront-cart/internal/shipping"
	"github.com/noah-isme/storefront-cart/internal/wishlist"
)

// DefaultSessionHeader carries the cart session id.
const DefaultSessionHeader = "X-Cart-Session"

// View is the cart as rendered to clients.
type View struct {
	Items    []Item           `json:"items"`
	Totals   pricing.Summary  `json:"totals"`
	Stats    Stats            `json:"stats"`
	Info     Info             `json:"info"`
	Coupons  []coupon.Line    `json:"coupons"`
	Shipping shipping.Summary `json:"shipping"`
	Undo     history.Info     `json:"undo"`
	Redo     history.Info     `json:"redo"`
}

// NewView renders the current state of s.
func NewView(s *Store) View {
	items := s.Items()
	if items == nil {
		items = []Item{}
	}
	coupons := s.CouponBreakdown()
	if coupons == nil {
		coupons = []coupon.Line{}
	}
	return View{
		Items:    items,
		Totals:   s.Summary(),
		Stats:    s.Stats(),
		Info:     s.Info(),
		Coupons:  coupons,
		Shipping: s.ShippingSummary(),
		Undo:     s.UndoInfo(),
		Redo:     s.RedoInfo(),
	}
}

// HandlerConfig wires the HTTP handler.
type HandlerConfig struct {
	Sessions      *Sessions
	Products      ProductLookup
	SessionHeader string
	Logger        zerolog.Logger
}

// Handler exposes the session cart over HTTP.
type Handler struct {
	sessions *Sessions
	products ProductLookup
	header   string
	validate *validator.Validate
	log      zerolog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	header := cfg.SessionHeader
	if header == "" {
		header = DefaultSessionHeader
	}
	return &Handler{
		sessions: cfg.Sessions,
		products: cfg.Products,
		header:   header,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      cfg.Logger,
	}
}

// Register mounts the cart routes on r. Mutating routes are wrapped with writes.
func (h *Handler) Register(r chi.Router, writes ...func(http.Handler) http.Handler) {
	r.Use(h.Session)
	r.Get("/", h.Get)
	r.Get("/shipping/options", h.ShippingOptions)
	r.Get("/history", h.History)
	r.Get("/wishlist", h.Wishlist)
	r.Get("/notifications", h.Notifications)
	r.Group(func(g chi.Router) {
		g.Use(writes...)
		g.Delete("/", h.Clear)
		g.Post("/items", h.AddItem)
		g.Patch("/items/{id}", h.UpdateItem)
		g.Delete("/items/{id}", h.RemoveItem)
		g.Post("/coupons", h.ApplyCoupon)
		g.Post("/coupons/validate", h.ValidateCoupon)
		g.Delete("/coupons/{code}", h.RemoveCoupon)
		g.Put("/shipping", h.SetShipping)
		g.Post("/undo", h.Undo)
		g.Post("/redo", h.Redo)
		g.Post("/wishlist", h.AddToWishlist)
		g.Delete("/wishlist/{id}", h.RemoveFromWishlist)
		g.Post("/wishlist/{id}/move", h.MoveToCart)
	})
}

// Session resolves the cart session from the request header, issuing a new
// id in the response header when none was sent.
func (h *Handler) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(h.header))
		if id == "" {
			id = uuid.NewString()
		} else if _, err := uuid.Parse(id); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
			return
		}
		w.Header().Set(h.header, id)
		next.ServeHTTP(w, r.WithContext(common.WithSession(r.Context(), id)))
	})
}

// Get renders the cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(*Store) error { return nil })
}

// AddItem resolves the product and adds it to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID string `json:"productId" validate:"required"`
		Quantity  int    `json:"quantity" validate:"gte=0"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	product, ok := h.product(w, r, payload.ProductID)
	if !ok {
		return
	}
	h.view(w, r, func(s *Store) error {
		_, err := s.AddItem(r.Context(), product, payload.Quantity)
		return err
	})
}

// UpdateItem sets a line quantity.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	id := chi.URLParam(r, "id")
	h.view(w, r, func(s *Store) error {
		return s.UpdateQuantity(r.Context(), id, payload.Quantity)
	})
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.view(w, r, func(s *Store) error {
		return s.RemoveItem(r.Context(), id)
	})
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(s *Store) error {
		return s.ClearCart(r.Context())
	})
}

type couponPayload struct {
	Code string `json:"code" validate:"required"`
}

// ApplyCoupon applies a discount code.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var payload couponPayload
	if !h.decode(w, r, &payload) {
		return
	}
	h.view(w, r, func(s *Store) error {
		_, _, err := s.ApplyCoupon(r.Context(), payload.Code)
		return err
	})
}

// ValidateCoupon checks a code without applying it.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var payload couponPayload
	if !h.decode(w, r, &payload) {
		return
	}
	var def coupon.Definition
	err := h.sessions.With(r.Context(), h.sessionID(r), func(s *Store) error {
		var err error
		def, err = s.ValidateCoupon(payload.Code)
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"valid": true, "coupon": def}})
}

// RemoveCoupon drops an applied code.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.view(w, r, func(s *Store) error {
		_, err := s.RemoveCoupon(r.Context(), code)
		return err
	})
}

// SetShipping selects a delivery method.
func (h *Handler) SetShipping(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OptionID string `json:"optionId" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	h.view(w, r, func(s *Store) error {
		_, err := s.SetShippingOption(r.Context(), payload.OptionID)
		return err
	})
}

// ShippingOptions lists delivery methods priced for the current cart.
func (h *Handler) ShippingOptions(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	err := h.sessions.With(r.Context(), h.sessionID(r), func(s *Store) error {
		data = map[string]any{
			"options":     s.ShippingOptions(),
			"summary":     s.ShippingSummary(),
			"recommended": map[string]string{"fastest": s.RecommendShipping(shipping.Fastest).ID, "cheapest": s.RecommendShipping(shipping.Cheapest).ID},
		}
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": data})
}

// Undo reverts the last action.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(s *Store) error {
		_, err := s.Undo(r.Context())
		return err
	})
}

// Redo replays the last undone action.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(s *Store) error {
		_, err := s.Redo(r.Context())
		return err
	})
}

// History lists recorded actions for the history panel.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	err := h.sessions.With(r.Context(), h.sessionID(r), func(s *Store) error {
		data = map[string]any{"entries": s.History(), "info": s.HistoryInfo()}
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": data})
}

// Wishlist lists saved products.
func (h *Handler) Wishlist(w http.ResponseWriter, r *http.Request) {
	h.wishlist(w, r, func(*Store) error { return nil })
}

// AddToWishlist saves a product for later.
func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID string `json:"productId" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	product, ok := h.product(w, r, payload.ProductID)
	if !ok {
		return
	}
	h.wishlist(w, r, func(s *Store) error {
		return s.AddToWishlist(r.Context(), product)
	})
}

// RemoveFromWishlist drops a saved product.
func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.wishlist(w, r, func(s *Store) error {
		return s.RemoveFromWishlist(r.Context(), id)
	})
}

// MoveToCart moves a saved product into the cart.
func (h *Handler) MoveToCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.view(w, r, func(s *Store) error {
		_, err := s.MoveToCart(r.Context(), id)
		return err
	})
}

// Notifications drains the toasts queued for the session.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	pending := h.sessions.Notifications(h.sessionID(r))
	if pending == nil {
		pending = []events.Notification{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": pending})
}

// ProductPrice resolves the tier price of a product for a quantity.
func (h *Handler) ProductPrice(w http.ResponseWriter, r *http.Request) {
	product, ok := h.product(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	quantity := common.AtoiDefault(r.URL.Query().Get("quantity"), max(product.MinPurchase, 1))
	if quantity < 1 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quantity must be positive", nil)
		return
	}
	unit := product.UnitPrice(quantity)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"productId": product.ID,
			"quantity":  quantity,
			"unitPrice": unit,
			"lineTotal": unit * pricing.Money(quantity),
			"range":     product.PriceRange(),
		},
	})
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request, fn func(*Store) error) {
	var v View
	err := h.sessions.With(r.Context(), h.sessionID(r), func(s *Store) error {
		if err := fn(s); err != nil {
			return err
		}
		v = NewView(s)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

func (h *Handler) wishlist(w http.ResponseWriter, r *http.Request, fn func(*Store) error) {
	var items []wishlist.Item
	err := h.sessions.With(r.Context(), h.sessionID(r), func(s *Store) error {
		if err := fn(s); err != nil {
			return err
		}
		items = s.Wishlist()
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) sessionID(r *http.Request) string {
	if id, ok := common.Session(r.Context()); ok {
		return id
	}
	return strings.TrimSpace(r.Header.Get(h.header))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		details := map[string]string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", details)
		return false
	}
	return true
}

func (h *Handler) product(w http.ResponseWriter, r *http.Request, id string) (Product, bool) {
	if h.products == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "product catalog not configured", nil)
		return Product{}, false
	}
	p, err := h.products.Product(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return Product{}, false
	}
	return p, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := classify(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("cart_request_failed")
	}
	common.WriteError(w, appErr)
}

func classify(err error) *common.AppError {
	switch {
	case errors.Is(err, ErrUnknownProduct):
		return common.NewAppError("PRODUCT_NOT_FOUND", "product not found", http.StatusNotFound, err)
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("NOT_FOUND", "item not found", http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidProduct):
		return common.NewAppError("BAD_REQUEST", "invalid product", http.StatusBadRequest, err)
	case errors.Is(err, ErrQuantityOutOfRange):
		return common.NewAppError("QUANTITY_OUT_OF_RANGE", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrExceedsStock):
		return common.NewAppError("INSUFFICIENT_STOCK", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrAlreadyInWishlist):
		return common.NewAppError("CONFLICT", "product already in wishlist", http.StatusConflict, err)
	case errors.Is(err, ErrNothingToUndo):
		return common.NewAppError("NOTHING_TO_UNDO", "nothing to undo", http.StatusConflict, err)
	case errors.Is(err, ErrNothingToRedo):
		return common.NewAppError("NOTHING_TO_REDO", "nothing to redo", http.StatusConflict, err)
	case errors.Is(err, coupon.ErrUnknownCode):
		return common.NewAppError("COUPON_NOT_FOUND", "coupon code unknown", http.StatusNotFound, err)
	case errors.Is(err, coupon.ErrAlreadyApplied):
		return common.NewAppError("COUPON_ALREADY_APPLIED", "coupon already applied", http.StatusConflict, err)
	case errors.Is(err, coupon.ErrIncompatible):
		return common.NewAppError("COUPON_INCOMPATIBLE", "coupon cannot be combined with applied coupons", http.StatusConflict, err)
	case errors.Is(err, coupon.ErrExpired):
		return common.NewAppError("COUPON_EXPIRED", "coupon expired", http.StatusUnprocessableEntity, err)
	case errors.Is(err, coupon.ErrMinimumSpendUnmet):
		return common.NewAppError("COUPON_MIN_SPEND", "minimum spend not met", http.StatusUnprocessableEntity, err)
	case errors.Is(err, shipping.ErrUnknownOption):
		return common.NewAppError("UNKNOWN_SHIPPING_OPTION", "unknown shipping option", http.StatusBadRequest, err)
	default:
		return common.NewAppError("INTERNAL", "internal server error", http.StatusInternalServerError, err)
	}
}
