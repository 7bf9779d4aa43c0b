// Package docs serves the OpenAPI description of the HTTP API.
// Regenerate the full document with: swag init -g cmd/tripgo/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/bookings": {
            "get": {"tags": ["bookings"], "summary": "Find booking by reference", "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "post": {"tags": ["bookings"], "summary": "Create booking", "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Unavailable"}, "429": {"description": "Too Many Requests"}}}
        },
        "/bookings/{id}": {
            "get": {"tags": ["bookings"], "summary": "Get booking", "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "patch": {"tags": ["bookings"], "summary": "Update booking", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/bookings/{id}/assign": {"post": {"tags": ["agents"], "summary": "Assign agent", "responses": {"200": {"description": "OK"}, "400": {"description": "Already assigned"}}}},
        "/bookings/{id}/confirm": {"post": {"tags": ["agents"], "summary": "Confirm AGENT booking", "responses": {"200": {"description": "OK"}, "403": {"description": "Not the assigned agent"}}}},
        "/bookings/{id}/complete": {"post": {"tags": ["bookings"], "summary": "Complete booking", "responses": {"200": {"description": "OK"}}}},
        "/bookings/{id}/finalize": {"post": {"tags": ["agents"], "summary": "Finalize booking", "responses": {"200": {"description": "OK"}}}},
        "/bookings/{id}/cancel": {"post": {"tags": ["bookings"], "summary": "Cancel booking", "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid transition"}}}},
        "/bookings/{id}/commission": {"get": {"tags": ["agents"], "summary": "Get booking commission", "responses": {"200": {"description": "OK"}}}},
        "/bookings/{id}/payments/checkout": {"post": {"tags": ["payments"], "summary": "Start hosted checkout", "responses": {"201": {"description": "Created"}, "502": {"description": "Processor unavailable"}}}},
        "/bookings/{id}/payments/checkout/verify": {"post": {"tags": ["payments"], "summary": "Verify hosted checkout", "responses": {"200": {"description": "OK"}, "402": {"description": "Payment not completed"}}}},
        "/bookings/{id}/payments/intent": {"post": {"tags": ["payments"], "summary": "Start payment intent", "responses": {"201": {"description": "Created"}}}},
        "/bookings/{id}/payments/intent/verify": {"post": {"tags": ["payments"], "summary": "Confirm payment intent", "responses": {"200": {"description": "OK"}, "402": {"description": "Payment not completed"}}}},
        "/destinations/{id}": {"get": {"tags": ["destinations"], "summary": "Get destination", "responses": {"200": {"description": "OK"}}}},
        "/destinations/{id}/availability": {"get": {"tags": ["destinations"], "summary": "Check availability", "responses": {"200": {"description": "OK"}}}},
        "/admin/destinations": {"post": {"tags": ["admin"], "summary": "Create destination", "responses": {"201": {"description": "Created"}}}},
        "/admin/destinations/{id}": {"put": {"tags": ["admin"], "summary": "Replace destination", "responses": {"204": {"description": "No Content"}}}},
        "/admin/bookings/expire": {"post": {"tags": ["admin"], "summary": "Expire stale bookings", "responses": {"200": {"description": "OK"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "TripGo API",
	Description:      "Travel booking lifecycle and payment orchestration.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
