// Package docs registers the Swagger document of the Talabin API.
//
//	@title			Talabin API
//	@version		1.0.0
//	@description	Gold trading backend: prices, orders, wallet, deposits, withdrawals and installments.
//	@description	Errors are RFC 7807 problem details (application/problem+json).
//	@basePath		/api/v1
//
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
// @description				JWT Bearer token. Format: 'Bearer <token>'
package docs

import (
	"github.com/swaggo/swag"
)

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
        "/health": {
            "get": {
                "tags": [
                    "System"
                ],
                "summary": "Service health",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "503": {
                        "description": "Price Unavailable",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                }
            }
        },
        "/prices/current": {
            "get": {
                "tags": [
                    "Prices"
                ],
                "summary": "Active gold price",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "503": {
                        "description": "Price Unavailable",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                }
            }
        },
        "/prices/history": {
            "get": {
                "tags": [
                    "Prices"
                ],
                "summary": "Price history",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "timeframe",
                        "in": "query",
                        "type": "string",
                        "required": false
                    }
                ]
            }
        },
        "/me": {
            "get": {
                "tags": [
                    "Accounts"
                ],
                "summary": "Current user profile",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "put": {
                "tags": [
                    "Accounts"
                ],
                "summary": "Update profile",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ProfileRequest"
                        }
                    }
                ]
            }
        },
        "/wallet": {
            "get": {
                "tags": [
                    "Wallet"
                ],
                "summary": "Wallet balances",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/wallet/transactions": {
            "get": {
                "tags": [
                    "Wallet"
                ],
                "summary": "Wallet journal",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "type",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "offset",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ]
            }
        },
        "/orders/preview": {
            "post": {
                "tags": [
                    "Orders"
                ],
                "summary": "Price an order without placing it",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "503": {
                        "description": "Price Unavailable",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/OrderRequest"
                        }
                    }
                ]
            }
        },
        "/orders": {
            "post": {
                "tags": [
                    "Orders"
                ],
                "summary": "Buy or sell gold at the active price",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "422": {
                        "description": "Insufficient Funds",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "503": {
                        "description": "Price Unavailable",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/OrderRequest"
                        }
                    }
                ]
            },
            "get": {
                "tags": [
                    "Orders"
                ],
                "summary": "List orders",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "type",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "offset",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ]
            }
        },
        "/orders/{order_number}": {
            "get": {
                "tags": [
                    "Orders"
                ],
                "summary": "Get an order",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "order_number",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/orders/{order_number}/cancel": {
            "post": {
                "tags": [
                    "Orders"
                ],
                "summary": "Cancel a pending order",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "order_number",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/bank-accounts": {
            "get": {
                "tags": [
                    "Fiat"
                ],
                "summary": "List bank accounts",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "post": {
                "tags": [
                    "Fiat"
                ],
                "summary": "Add a bank account",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BankAccountInput"
                        }
                    }
                ]
            }
        },
        "/deposits": {
            "post": {
                "tags": [
                    "Fiat"
                ],
                "summary": "Request a deposit",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateDepositRequest"
                        }
                    }
                ]
            },
            "get": {
                "tags": [
                    "Fiat"
                ],
                "summary": "List deposits",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "offset",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ]
            }
        },
        "/deposits/{id}/receipt": {
            "post": {
                "tags": [
                    "Fiat"
                ],
                "summary": "Upload a deposit receipt",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/withdrawals": {
            "post": {
                "tags": [
                    "Fiat"
                ],
                "summary": "Request a withdrawal",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "422": {
                        "description": "Insufficient Funds",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateWithdrawalRequest"
                        }
                    }
                ]
            },
            "get": {
                "tags": [
                    "Fiat"
                ],
                "summary": "List withdrawals",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "offset",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ]
            }
        },
        "/withdrawals/{id}/cancel": {
            "post": {
                "tags": [
                    "Fiat"
                ],
                "summary": "Cancel a withdrawal",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/installment-plans": {
            "get": {
                "tags": [
                    "Installments"
                ],
                "summary": "List active installment plans",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/installment-plans/{id}": {
            "get": {
                "tags": [
                    "Installments"
                ],
                "summary": "Get an active installment plan",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/installments": {
            "post": {
                "tags": [
                    "Installments"
                ],
                "summary": "Buy gold on an installment plan",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SubscribeRequest"
                        }
                    }
                ]
            },
            "get": {
                "tags": [
                    "Installments"
                ],
                "summary": "List installments",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "offset",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ]
            }
        },
        "/installments/{id}": {
            "get": {
                "tags": [
                    "Installments"
                ],
                "summary": "Get an installment with its payments",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/installments/{id}/payments/{payment_id}/pay": {
            "post": {
                "tags": [
                    "Installments"
                ],
                "summary": "Pay one installment payment",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "422": {
                        "description": "Insufficient Funds",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payment_id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/admin/prices": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Publish a new gold price",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/PublishRequest"
                        }
                    }
                ]
            }
        },
        "/admin/deposits/{id}/verify": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Verify a deposit and credit the wallet",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/admin/withdrawals/{id}/approve": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Approve a withdrawal",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/admin/withdrawals/{id}/complete": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Complete a withdrawal",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/admin/installment-plans": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Create an installment plan",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/StandardResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/ProblemDetails"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/PlanInput"
                        }
                    }
                ]
            }
        }
    },
    "definitions": {
        "StandardResponse": {
            "type": "object",
            "properties": {
                "success": {
                    "type": "boolean"
                },
                "data": {
                    "type": "object"
                },
                "message": {
                    "type": "string"
                },
                "timestamp": {
                    "type": "string",
                    "format": "date-time"
                },
                "trace_id": {
                    "type": "string"
                }
            }
        },
        "ProblemDetails": {
            "type": "object",
            "properties": {
                "type": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "detail": {
                    "type": "string"
                },
                "instance": {
                    "type": "string"
                },
                "trace_id": {
                    "type": "string"
                }
            }
        },
        "ProfileRequest": {
            "type": "object",
            "properties": {
                "first_name": {
                    "type": "string"
                },
                "last_name": {
                    "type": "string"
                }
            }
        },
        "OrderRequest": {
            "type": "object",
            "properties": {
                "order_type": {
                    "type": "string"
                },
                "amount_irr": {
                    "type": "string"
                }
            }
        },
        "BankAccountInput": {
            "type": "object",
            "properties": {
                "bank_name": {
                    "type": "string"
                },
                "account_number": {
                    "type": "string"
                },
                "sheba_number": {
                    "type": "string"
                },
                "card_number": {
                    "type": "string"
                },
                "account_holder_name": {
                    "type": "string"
                },
                "is_default": {
                    "type": "boolean"
                }
            }
        },
        "CreateDepositRequest": {
            "type": "object",
            "properties": {
                "amount": {
                    "type": "string"
                },
                "payment_method": {
                    "type": "string"
                }
            }
        },
        "CreateWithdrawalRequest": {
            "type": "object",
            "properties": {
                "amount": {
                    "type": "string"
                },
                "bank_account_id": {
                    "type": "string"
                }
            }
        },
        "SubscribeRequest": {
            "type": "object",
            "properties": {
                "plan_id": {
                    "type": "string"
                },
                "total_amount": {
                    "type": "string"
                }
            }
        },
        "PublishRequest": {
            "type": "object",
            "properties": {
                "buy_price": {
                    "type": "string"
                },
                "sell_price": {
                    "type": "string"
                },
                "source": {
                    "type": "string"
                }
            }
        },
        "PlanInput": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "duration_months": {
                    "type": "integer"
                },
                "interest_rate": {
                    "type": "string"
                },
                "min_amount": {
                    "type": "string"
                },
                "max_amount": {
                    "type": "string"
                },
                "is_active": {
                    "type": "boolean"
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds the values rendered into docTemplate.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Talabin API",
	Description:      "Gold trading backend: prices, orders, wallet, deposits, withdrawals and installments.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
