package api

import (
	"net/http"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/middleware"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/SigNoz/storefront-go-app/internal/session"
	"github.com/SigNoz/storefront-go-app/pkg/config"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
)

// App holds application dependencies
type App struct {
	config          *config.Config
	db              *db.DB
	metrics         *metrics.AppMetrics
	sessions        *session.Manager
	authService     *services.AuthService
	cartService     *services.CartService
	orderService    *services.OrderService
	catalogService  *services.CatalogService
	feedbackService *services.FeedbackService
}

// NewApp creates a new application instance
func NewApp(
	cfg *config.Config,
	database *db.DB,
	m *metrics.AppMetrics,
	sessions *session.Manager,
	as *services.AuthService,
	cs *services.CartService,
	os *services.OrderService,
	cat *services.CatalogService,
	fs *services.FeedbackService,
) *App {
	return &App{
		config:          cfg,
		db:              database,
		metrics:         m,
		sessions:        sessions,
		authService:     as,
		cartService:     cs,
		orderService:    os,
		catalogService:  cat,
		feedbackService: fs,
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	// Middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(chimw.RealIP)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.ErrorHandlerMiddleware)
	r.Use(chimw.Timeout(a.config.RequestTimeout))
	r.Use(chimw.Compress(5, "application/json"))
	r.Use(middleware.SessionMiddleware(a.sessions, a.config.SessionCookie))
	r.Use(middleware.MetricsMiddleware(a.metrics))

	api := r.PathPrefix("/api/v1").Subrouter()

	// Catalog
	api.HandleFunc("/home", a.HomeHandler).Methods("GET")
	api.HandleFunc("/categories", a.ListCategoriesHandler).Methods("GET")
	api.HandleFunc("/categories/{id}", a.GetCategoryHandler).Methods("GET")
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")

	// Auth
	api.HandleFunc("/auth/register", a.RegisterHandler).Methods("POST")
	api.HandleFunc("/auth/login", a.LoginHandler).Methods("POST")

	// Feedback
	api.HandleFunc("/contact", a.FeedbackHandler).Methods("POST")
	api.HandleFunc("/feedback", a.FeedbackHandler).Methods("POST")

	// Everything below needs a session
	private := api.NewRoute().Subrouter()
	private.Use(middleware.RequireAuth)

	private.HandleFunc("/auth/logout", a.LogoutHandler).Methods("POST")
	private.HandleFunc("/auth/me", a.MeHandler).Methods("GET")

	// Cart
	private.HandleFunc("/cart", a.GetCartHandler).Methods("GET")
	private.HandleFunc("/cart/items", a.AddToCartHandler).Methods("POST")
	private.HandleFunc("/cart/items/{id}", a.UpdateCartItemHandler).Methods("PUT")
	private.HandleFunc("/cart/items/{id}", a.RemoveCartItemHandler).Methods("DELETE")

	// Orders
	private.HandleFunc("/checkout", a.CheckoutHandler).Methods("POST")
	private.HandleFunc("/orders", a.ListOrdersHandler).Methods("GET")
	private.HandleFunc("/orders/{id}", a.GetOrderHandler).Methods("GET")

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// HomeHandler handles GET /api/v1/home
func (a *App) HomeHandler(w http.ResponseWriter, r *http.Request) {
	home, err := a.catalogService.Home(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, home)
}

// ListCategoriesHandler handles GET /api/v1/categories
func (a *App) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.catalogService.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// GetCategoryHandler handles GET /api/v1/categories/{id}
func (a *App) GetCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "category")
	if err != nil {
		writeError(w, r, err)
		return
	}

	category, err := a.catalogService.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// GetProductHandler handles GET /api/v1/products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "product")
	if err != nil {
		writeError(w, r, err)
		return
	}

	product, err := a.catalogService.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// RegisterHandler handles POST /api/v1/auth/register
func (a *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := a.authService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// LoginHandler handles POST /api/v1/auth/login
func (a *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := a.authService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, identity, err := a.sessions.Issue(user.ID, user.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     a.config.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  identity.ExpiresAt,
		HttpOnly: true,
		Secure:   a.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: identity.ExpiresAt,
		User:      user,
	})
}

// LogoutHandler handles POST /api/v1/auth/logout
func (a *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Revoke(r.Context(), middleware.IdentityFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     a.config.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// MeHandler handles GET /api/v1/auth/me
func (a *App) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.authService.GetUser(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetCartHandler handles GET /api/v1/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	cart, err := a.cartService.Get(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// AddToCartHandler handles POST /api/v1/cart/items
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	userID := currentUserID(r)
	if err := a.cartService.Add(r.Context(), userID, req.ProductID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	a.respondWithCart(w, r, userID)
}

// UpdateCartItemHandler handles PUT /api/v1/cart/items/{id}
func (a *App) UpdateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "cart item")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req models.UpdateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, invalidRequest("quantity is required"))
		return
	}

	userID := currentUserID(r)
	if err := a.cartService.Update(r.Context(), userID, itemID, *req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	a.respondWithCart(w, r, userID)
}

// RemoveCartItemHandler handles DELETE /api/v1/cart/items/{id}
func (a *App) RemoveCartItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "cart item")
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID := currentUserID(r)
	if err := a.cartService.Remove(r.Context(), userID, itemID); err != nil {
		writeError(w, r, err)
		return
	}
	a.respondWithCart(w, r, userID)
}

// CheckoutHandler handles POST /api/v1/checkout
func (a *App) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	order, err := a.orderService.Checkout(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ListOrdersHandler handles GET /api/v1/orders
func (a *App) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := a.orderService.ListOrders(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrderHandler handles GET /api/v1/orders/{id}
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "order")
	if err != nil {
		writeError(w, r, err)
		return
	}

	order, err := a.orderService.GetOrder(r.Context(), currentUserID(r), orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// FeedbackHandler handles POST /api/v1/contact and /api/v1/feedback
func (a *App) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req models.FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	fb, err := a.feedbackService.Submit(r.Context(), req.Name, req.Email, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

func (a *App) respondWithCart(w http.ResponseWriter, r *http.Request, userID int64) {
	cart, err := a.cartService.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// currentUserID is only called behind RequireAuth
func currentUserID(r *http.Request) int64 {
	return middleware.IdentityFrom(r.Context()).UserID
}
