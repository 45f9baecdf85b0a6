package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/moto-rental/internal/domain/cart"
	"github.com/xenking/moto-rental/internal/domain/pricing"
)

// GetCart returns the caller's priced cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID, err := customer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.Get(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, &cart.Result{Cart: c})
}

// AddCartItem adds a motorcycle rental to the cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	customerID, err := customer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		req                  cart.AddItemRequest
		hasPickup, hasReturn bool
	)
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "motorcycleId":
			req.MotorcycleID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		case "pickupDate":
			req.PickupDate, err = decodeDate(d)
			hasPickup = true
		case "returnDate":
			req.ReturnDate, err = decodeDate(d)
			hasReturn = true
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		switch {
		case req.MotorcycleID == "":
			err = badRequest("motorcycleId is required")
		case !hasPickup || !hasReturn:
			err = badRequest("pickupDate and returnDate are required")
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.carts.AddItem(r.Context(), customerID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, res)
}

// UpdateCartItem changes the quantity or dates of a cart line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	customerID, err := customer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := cart.UpdateItemRequest{ItemID: chi.URLParam(r, "itemId")}
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "quantity":
			q, err := d.Int()
			req.Quantity = &q
			return err
		case "pickupDate":
			t, err := decodeDate(d)
			req.PickupDate = &t
			return err
		case "returnDate":
			t, err := decodeDate(d)
			req.ReturnDate = &t
			return err
		default:
			return d.Skip()
		}
	})
	if err == nil && req.Quantity == nil && req.PickupDate == nil && req.ReturnDate == nil {
		err = badRequest("nothing to update")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.carts.UpdateItem(r.Context(), customerID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, res)
}

// RemoveCartItem removes a line from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	customerID, err := customer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.carts.RemoveItem(r.Context(), customerID, chi.URLParam(r, "itemId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, res)
}

// ApplyCoupon attaches a promo code to the cart.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	customerID, err := customer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var code string
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		if key == "promoCode" {
			var err error
			code, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err == nil && code == "" {
		err = badRequest("promoCode is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.carts.ApplyCoupon(r.Context(), customerID, code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, res)
}

// RemoveCoupon detaches the coupon from the cart.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	customerID, err := customer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.carts.RemoveCoupon(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, res)
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	customerID, err := customer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.carts.Clear(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, res)
}

func writeCart(w http.ResponseWriter, status int, res *cart.Result) {
	c := res.Cart
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("customerId")
		e.Str(c.CustomerID)
		e.FieldStart("items")
		e.ArrStart()
		for _, li := range c.Items {
			encodeLineItem(e, li)
		}
		e.ArrEnd()
		e.FieldStart("appliedCoupon")
		if ac := c.AppliedCoupon; ac != nil {
			e.ObjStart()
			e.FieldStart("promoCode")
			e.Str(ac.PromoCode)
			e.FieldStart("type")
			e.Str(string(ac.Type))
			e.FieldStart("discountValue")
			e.Raw([]byte(ac.DiscountValue.String()))
			encodeMoney(e, "minimumCartValue", ac.MinimumCartValue)
			e.ObjEnd()
		} else {
			e.Null()
		}
		encodeMoney(e, "rentTotal", c.RentTotal)
		encodeMoney(e, "securityDepositTotal", c.SecurityDepositTotal)
		encodeMoney(e, "cartTotal", c.CartTotal)
		encodeMoney(e, "discount", c.Discount)
		encodeMoney(e, "discountedTotal", c.DiscountedTotal)
		e.FieldStart("couponDetached")
		e.Bool(res.CouponDetached)
		e.FieldStart("version")
		e.Int64(c.Version)
		if !c.UpdatedAt.IsZero() {
			encodeDateTime(e, "updatedAt", c.UpdatedAt.UTC().Truncate(time.Second))
		}
		e.ObjEnd()
	})
}

func encodeLineItem(e *jx.Encoder, li cart.LineItem) {
	item := li.PricingItem()
	days, _ := pricing.RentalDays(li.PickupDate, li.ReturnDate)
	rent, _ := pricing.ItemRent(item)

	e.ObjStart()
	e.FieldStart("id")
	e.Str(li.ID)
	e.FieldStart("motorcycleId")
	e.Str(li.MotorcycleID)
	e.FieldStart("quantity")
	e.Int(li.Quantity)
	encodeDate(e, "pickupDate", li.PickupDate)
	encodeDate(e, "returnDate", li.ReturnDate)
	e.FieldStart("days")
	e.Int(days)
	encodeMoney(e, "ratePerDay", li.RatePerDay)
	encodeMoney(e, "securityDepositPerUnit", li.SecurityDepositPerUnit)
	encodeMoney(e, "rent", rent)
	e.ObjEnd()
}
