package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/cart"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/checkout"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/http/handlers"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/middleware"
)

type Deps struct {
	Logger           *zap.Logger
	JWTSecret        []byte
	CORSAllowOrigins []string
	RequestTimeout   time.Duration

	Coupons      handlers.CouponValidator
	CouponAdmin  handlers.CouponAdmin
	Orders       handlers.OrderPlacer
	OrderStore   handlers.OrderStore
	Cart         cart.Repository
	Restaurants  handlers.RestaurantStatus
	Checkout     *checkout.Machine
	HealthProbes []handlers.Probe
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.Recover(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.HeaderCorrelationID},
		ExposedHeaders:   []string{middleware.HeaderCorrelationID},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimw.Timeout(d.RequestTimeout))
	r.Use(middleware.Authenticate(d.JWTSecret, d.Logger))

	health := &handlers.HealthHandler{Probes: d.HealthProbes}
	r.Get("/health", health.Live)
	r.Get("/health/ready", health.Ready)

	coupons := handlers.NewCouponHandler(d.Coupons, d.CouponAdmin, d.Logger)
	var pending handlers.PendingOrders
	if d.Checkout != nil {
		pending = d.Checkout
	}
	orders := handlers.NewOrderHandler(d.Orders, d.OrderStore, pending, d.Logger)
	carts := handlers.NewCartHandler(d.Cart, d.Logger)
	restaurants := handlers.NewRestaurantHandler(d.Restaurants, d.Logger)
	co := handlers.NewCheckoutHandler(d.Checkout, d.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/restaurants/{restaurantId}/status", restaurants.Status)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)

			r.Post("/coupons/validate", coupons.Validate)

			r.Post("/orders", orders.Place)
			r.Get("/orders/{orderId}", orders.Get)

			r.Route("/me", func(r chi.Router) {
				r.Get("/orders", orders.ListMine)
				r.Get("/cart", carts.Get)
				r.Delete("/cart", carts.Clear)
				r.Post("/cart/items", carts.AddItem)
				r.Patch("/cart/items/{itemId}", carts.UpdateQuantity)
				r.Delete("/cart/items/{itemId}", carts.Remove)
			})

			r.Route("/checkout/sessions", func(r chi.Router) {
				r.Post("/", co.Start)
				r.Route("/{sessionId}", func(r chi.Router) {
					r.Get("/", co.Get)
					r.Post("/confirm-cart", co.ConfirmCart)
					r.Put("/contact", co.SetContact)
					r.Post("/coupon", co.ApplyCoupon)
					r.Delete("/coupon", co.RemoveCoupon)
					r.Post("/continue", co.ContinueToPayment)
					r.Post("/payment", co.SelectPayment)
					r.Post("/submit", co.Submit)
					r.Post("/confirm-payment", co.ConfirmPayment)
					r.Post("/cancel", co.Cancel)
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/coupons", coupons.Create)
			r.Get("/coupons", coupons.List)
			r.Post("/coupons/{code}/deactivate", coupons.Deactivate)
			r.Patch("/orders/{orderId}/status", orders.UpdateStatus)
		})
	})

	return r
}
