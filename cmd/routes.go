package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"

	"cloudbill/internal/models"
)

func (app *application) JWTMiddlewareWithRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return app.JWTMiddleware(next, requiredRole)
	}
}

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	authMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole(models.RoleUser))
	adminAuthMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole(models.RoleAdmin))

	mux := pat.New()

	// Catalog
	mux.Get("/packages", standardMiddleware.ThenFunc(app.catalogHandler.ListPackages))
	mux.Get("/services", authMiddleware.ThenFunc(app.catalogHandler.ListMachineServices))

	// Invoices; fixed paths go before /invoices/:id
	mux.Post("/invoices/purchase", authMiddleware.ThenFunc(app.invoiceHandler.PurchasePackage))
	mux.Get("/invoices/export", adminAuthMiddleware.ThenFunc(app.invoiceHandler.ExportInvoices))
	mux.Post("/invoices", adminAuthMiddleware.ThenFunc(app.invoiceHandler.CreateInvoice))
	mux.Get("/invoices", authMiddleware.ThenFunc(app.invoiceHandler.ListInvoices))
	mux.Get("/invoices/:id", authMiddleware.ThenFunc(app.invoiceHandler.GetInvoice))
	mux.Put("/invoices/:id", adminAuthMiddleware.ThenFunc(app.invoiceHandler.UpdateInvoice))
	mux.Del("/invoices/:id", adminAuthMiddleware.ThenFunc(app.invoiceHandler.DeleteInvoice))
	mux.Post("/invoices/:id/pay", authMiddleware.ThenFunc(app.invoiceHandler.PayInvoice))
	mux.Post("/invoices/:id/check-payment", authMiddleware.ThenFunc(app.invoiceHandler.CheckPayment))

	// Devices
	mux.Post("/devices", authMiddleware.ThenFunc(app.deviceHandler.RegisterDevice))

	return mux
}
