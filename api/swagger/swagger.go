package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Driveline Lessons API",
        "description": "Lesson negotiation and wallet settlement backend",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Lessons", "description": "Lesson request and lifecycle management"},
        {"name": "Wallet", "description": "Wallet balance and transaction ledger"}
    ],
    "paths": {
        "/lessons": {
            "get": {
                "tags": ["Lessons"],
                "summary": "List lessons visible to the caller",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Lessons"],
                "summary": "Request a lesson with an instructor",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RequestLessonRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflicting open lesson with this instructor"},
                    "422": {"description": "Scheduled time violates minimum lead time"}
                }
            }
        },
        "/lessons/{id}": {
            "get": {
                "tags": ["Lessons"],
                "summary": "Get lesson detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{id}/accept": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Accept a pending lesson request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state or response window closed"}
                }
            }
        },
        "/lessons/{id}/reject": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Reject a pending lesson request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectLessonRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state or response window closed"}
                }
            }
        },
        "/lessons/{id}/reschedule": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Move a confirmed lesson to a new time slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RescheduleLessonRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "New slot violates minimum lead time"}
                }
            }
        },
        "/lessons/{id}/start": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Start a confirmed lesson",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{id}/complete": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Complete a lesson and settle funds",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Settlement rolled back, safe to retry"}
                }
            }
        },
        "/lessons/{id}/cancel": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Cancel a lesson before it starts",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{id}/receipt.pdf": {
            "get": {
                "tags": ["Lessons"],
                "summary": "Download the settlement receipt",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF receipt"}
                }
            }
        },
        "/wallet/balance": {
            "get": {
                "tags": ["Wallet"],
                "summary": "Current wallet balance for the caller",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/wallet/transactions": {
            "get": {
                "tags": ["Wallet"],
                "summary": "List wallet transactions for the caller",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Wallet"],
                "summary": "Apply a manual ledger entry (admin)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyTransactionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/wallet/statement.csv": {
            "get": {
                "tags": ["Wallet"],
                "summary": "Download the caller's wallet statement",
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "CSV statement"}
                }
            }
        }
    },
    "definitions": {
        "Lesson": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "instructor_id": {"type": "string"},
                "scheduled_at": {"type": "string"},
                "requested_at": {"type": "string"},
                "response_deadline": {"type": "string"},
                "status": {"type": "string"},
                "price": {"type": "string"},
                "payment_method": {"type": "string"},
                "payment_id": {"type": "string"},
                "reject_reason": {"type": "string"},
                "cancelled_by": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "WalletTransaction": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "amount": {"type": "string"},
                "type": {"type": "string"},
                "description": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "RequestLessonRequest": {
            "type": "object",
            "properties": {
                "instructorId": {"type": "string"},
                "scheduledAt": {"type": "string"},
                "price": {"type": "string"},
                "paymentMethod": {"type": "string", "enum": ["WALLET", "CASH"]}
            },
            "required": ["instructorId", "scheduledAt", "price"]
        },
        "RejectLessonRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "RescheduleLessonRequest": {
            "type": "object",
            "properties": {
                "scheduledAt": {"type": "string"}
            },
            "required": ["scheduledAt"]
        },
        "ApplyTransactionRequest": {
            "type": "object",
            "properties": {
                "userId": {"type": "string"},
                "amount": {"type": "string"},
                "type": {"type": "string", "enum": ["DEPOSIT", "WITHDRAW", "BONUS"]},
                "description": {"type": "string"}
            },
            "required": ["userId", "amount", "type"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
