// Package site is a small storefront that exercises the tracker API: page
// names, props and eVars, events, and a checkout whose transaction id is
// deferred to the confirmation page across a redirect.
package site

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"Sitecat/internal/analytics"
	"Sitecat/internal/models"
	"Sitecat/internal/plugin"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

// Event numbers reported by the storefront
const (
	EventPurchase    = 1
	EventProductView = 2
	EventCartAdd     = 3
)

// Base wraps a page handler with the middleware chain of the server
type Base func(httprouter.Handle) httprouter.Handle

type Product struct {
	SKU   string `json:"sku"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

var catalog = map[string]Product{
	"tee-blue":  {SKU: "tee-blue", Name: "Blue T-Shirt", Price: "19.00"},
	"mug-white": {SKU: "mug-white", Name: "White Mug", Price: "9.50"},
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Product}}<p>{{.Product.Name}}: ${{.Product.Price}}</p>
<form method="post" action="/checkout"><input type="hidden" name="sku" value="{{.Product.SKU}}">
<input name="zip" placeholder="zip"><input name="state" placeholder="state"><button>Buy</button></form>{{end}}
{{if .Message}}<p>{{.Message}}</p>{{end}}
</body>
</html>
`))

type pageData struct {
	Title   string
	Product *Product
	Message string
}

// Site serves the storefront pages
type Site struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Site {
	if logger == nil {
		logger = slog.Default()
	}
	return &Site{logger: logger.With("component", "site")}
}

// InstallHandlers registers the storefront routes on router
func (s *Site) InstallHandlers(router *httprouter.Router, base Base) {
	router.GET("/", base(s.home))
	router.GET("/products/:sku", base(s.product))
	router.POST("/checkout", base(s.checkout))
	router.GET("/checkout/complete", base(s.complete))
	router.GET("/cart", base(s.cart))
	router.GET("/fragments/cart", base(s.cartFragment))
}

func (s *Site) home(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.track(r, func(t *analytics.Tracker) error {
		if err := t.SetPageName("home"); err != nil {
			return err
		}
		return t.SetProp(1, "landing")
	})
	s.render(w, http.StatusOK, pageData{Title: "Welcome", Message: "Pick a product."})
}

func (s *Site) product(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	sku := p.ByName("sku")
	prod, ok := catalog[sku]
	if !ok {
		s.NotFound(w, r)
		return
	}

	s.track(r, func(t *analytics.Tracker) error {
		if err := t.SetPageName("product:" + sku); err != nil {
			return err
		}
		if err := t.SetPageType("product"); err != nil {
			return err
		}
		if err := t.SetEVar(1, sku); err != nil {
			return err
		}
		return t.ActivateEvent(EventProductView)
	})
	s.render(w, http.StatusOK, pageData{Title: prod.Name, Product: &prod})
}

// checkout plants the purchase for the confirmation page, since the tracking
// code of a redirect is never rendered
func (s *Site) checkout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	prod, ok := catalog[r.PostForm.Get("sku")]
	if !ok {
		http.Error(w, "unknown product", http.StatusBadRequest)
		return
	}

	txID := uuid.NewString()
	s.track(r, func(t *analytics.Tracker) error {
		if err := t.SetTransactionID(txID, analytics.Defer()); err != nil {
			return err
		}
		if err := t.ActivateEvent(EventPurchase, analytics.Defer()); err != nil {
			return err
		}
		if err := t.SetEVar(1, prod.SKU, analytics.Defer()); err != nil {
			return err
		}
		if zip := strings.TrimSpace(r.PostForm.Get("zip")); zip != "" {
			if err := t.SetZip(zip, analytics.Defer()); err != nil {
				return err
			}
		}
		if state := strings.TrimSpace(r.PostForm.Get("state")); state != "" {
			return t.SetState(state, analytics.Defer())
		}
		return nil
	})

	s.logger.Info("order placed", "sku", prod.SKU, "transaction_id", txID)
	http.Redirect(w, r, "/checkout/complete", http.StatusFound)
}

func (s *Site) complete(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.track(r, func(t *analytics.Tracker) error {
		return t.SetPageName("checkout:complete")
	})
	s.render(w, http.StatusOK, pageData{Title: "Thank you", Message: "Your order is on its way."})
}

// cart is polled by the storefront's scripts and never gets tracking code
func (s *Site) cart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.track(r, func(t *analytics.Tracker) error {
		return t.ActivateEvent(EventCartAdd)
	})
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"items": []Product{}}); err != nil {
		s.logger.Error("failed to encode JSON", "error", err)
	}
}

// cartFragment is spliced into an existing page by the client
func (s *Site) cartFragment(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	plugin.SetRenderMode(r.Context(), models.RenderNone)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<div class=\"cart\">0 items</div>"))
}

// NotFound renders the storefront's 404 page
func (s *Site) NotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusNotFound, pageData{Title: "Not found", Message: "That page does not exist."})
}

// track runs fn against the request's tracker, if the request has one
func (s *Site) track(r *http.Request, fn func(*analytics.Tracker) error) {
	t := plugin.Tracker(r.Context())
	if t == nil {
		return
	}
	if err := fn(t); err != nil {
		s.logger.Warn("failed to update tracker", "path", r.URL.Path, "error", err)
	}
}

func (s *Site) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}
